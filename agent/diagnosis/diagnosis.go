// Package diagnosis turns one customer message plus the session state into
// a structured assessment: intent, extracted identifiers, a confidence
// score, and the signal flags the deterministic decision stage consumes.
package diagnosis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
)

type Diagnoser struct {
	runner compose.Runnable[map[string]any, diagnosisLLMOutput]
}

var _ contractx.Diagnoser = (*Diagnoser)(nil)

type diagnosisLLMOutput struct {
	Intent                string `json:"intent"`
	CustomerEmail         string `json:"customer_email,omitempty"`
	CustomerID            string `json:"customer_id,omitempty"`
	OrderID               string `json:"order_id,omitempty"`
	ResolutionPlan        string `json:"resolution_plan"`
	Confidence            string `json:"confidence"`
	Reply                 string `json:"reply"`
	HumanRequested        bool   `json:"human_requested"`
	Unsatisfied           bool   `json:"unsatisfied"`
	StrongDissatisfaction bool   `json:"strong_dissatisfaction"`
	BillingDisputeOrFraud bool   `json:"billing_dispute_or_fraud"`
	DefectiveOrSafety     bool   `json:"defective_or_safety"`
}

func New(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*Diagnoser, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: diagnosis prompt is required", contractx.ErrValidation)
	}

	runner, err := compileDiagnosisGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile diagnosis graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Diagnoser{runner: runner}, nil
}

func (d *Diagnoser) Diagnose(ctx context.Context, req contractx.DiagnosisRequest) (contractx.DiagnosisResponse, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return contractx.DiagnosisResponse{}, fmt.Errorf("%w: user message is required", contractx.ErrValidation)
	}

	payload := map[string]any{
		"user_message":  req.UserMessage,
		"session_state": req.State,
		"retry_count":   req.RetryCount,
		"facts":         req.Facts,
	}
	inputBytes, err := json.Marshal(payload)
	if err != nil {
		return contractx.DiagnosisResponse{}, fmt.Errorf("%w: marshal diagnosis payload: %v", contractx.ErrValidation, err)
	}

	out, err := d.runner.Invoke(ctx, map[string]any{
		"input": string(inputBytes),
	})
	if err != nil {
		return contractx.DiagnosisResponse{}, fmt.Errorf("%w: diagnosis invoke: %v", contractx.ErrModelInvoke, err)
	}

	resp := contractx.DiagnosisResponse{
		Intent:                strings.TrimSpace(out.Intent),
		CustomerEmail:         strings.TrimSpace(out.CustomerEmail),
		CustomerID:            strings.TrimSpace(out.CustomerID),
		OrderID:               strings.TrimSpace(out.OrderID),
		ResolutionPlan:        strings.TrimSpace(out.ResolutionPlan),
		Confidence:            contractx.Confidence(strings.ToUpper(strings.TrimSpace(out.Confidence))),
		Reply:                 strings.TrimSpace(out.Reply),
		HumanRequested:        out.HumanRequested,
		Unsatisfied:           out.Unsatisfied,
		StrongDissatisfaction: out.StrongDissatisfaction,
		BillingDisputeOrFraud: out.BillingDisputeOrFraud,
		DefectiveOrSafety:     out.DefectiveOrSafety,
	}

	if err := validateDiagnosis(resp); err != nil {
		return contractx.DiagnosisResponse{}, err
	}
	return resp, nil
}

func validateDiagnosis(resp contractx.DiagnosisResponse) error {
	if resp.Intent == "" {
		return fmt.Errorf("%w: intent is empty", contractx.ErrSchemaViolation)
	}
	if resp.Confidence != contractx.ConfidenceHigh && resp.Confidence != contractx.ConfidenceLow {
		return fmt.Errorf("%w: unsupported confidence=%q", contractx.ErrSchemaViolation, resp.Confidence)
	}
	if resp.Reply == "" {
		return fmt.Errorf("%w: reply is empty", contractx.ErrSchemaViolation)
	}
	return nil
}
