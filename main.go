package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	resolverx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/agents/resolver"
	diagnosisx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/diagnosis"
	graphx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/graph"
	llmx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/llm"
	policyx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/policy"
	promptx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/prompt"
	configx "github.com/kittipos/Casemate-Support-Resolution-Engine/pkg/config"
	_ "github.com/kittipos/Casemate-Support-Resolution-Engine/pkg/logger/autoload"
	ordersx "github.com/kittipos/Casemate-Support-Resolution-Engine/pkg/orders"
	ticketsx "github.com/kittipos/Casemate-Support-Resolution-Engine/pkg/tickets"
	upstashx "github.com/kittipos/Casemate-Support-Resolution-Engine/pkg/upstash"
)

type AppConfig struct {
	// GraphBackend selects task-graph persistence: "redis" or "postgres".
	GraphBackend string `envconfig:"GRAPH_BACKEND" split_words:"true" default:"redis"`
	RetryCeiling int    `envconfig:"RETRY_CEILING" split_words:"true" default:"3"`
}

func main() {
	ctx := context.Background()
	appCfg := configx.MustNew[AppConfig]("CASEMATE")

	graphStore, policyStore := buildStores(ctx, appCfg.GraphBackend)

	gateway, err := policyx.NewGateway(policyStore)
	if err != nil {
		log.Fatal().Err(err).Msg("build policy gateway")
	}

	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid llm config")
	}
	orCfg := llmCfg.OpenRouterForDiagnosis()
	chatModel, err := orCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("build chat model")
	}

	diagnoser, err := diagnosisx.New(ctx, chatModel, promptx.LoadPromptSet().Diagnose)
	if err != nil {
		log.Fatal().Err(err).Msg("build diagnoser")
	}

	ordersClient, err := ordersx.NewClient(*configx.MustNew[ordersx.Config]("ORDERS"))
	if err != nil {
		log.Fatal().Err(err).Msg("build orders client")
	}
	ticketsClient, err := ticketsx.NewClient(*configx.MustNew[ticketsx.Config]("TICKETS"))
	if err != nil {
		log.Fatal().Err(err).Msg("build tickets client")
	}

	engine, err := resolverx.New(graphStore, diagnoser, ordersClient, ticketsClient, gateway, resolverx.Config{
		RetryCeiling: appCfg.RetryCeiling,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build resolver")
	}

	runSession(ctx, engine)
}

func buildStores(ctx context.Context, backend string) (graphx.Store, policyx.StateStore) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "postgres":
		pgCfg := configx.MustNew[graphx.PostgresConfig]("POSTGRES")
		db, err := graphx.NewPostgresDB(*pgCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		store, err := graphx.NewBunStore(db)
		if err != nil {
			log.Fatal().Err(err).Msg("build bun graph store")
		}
		if err := store.Init(ctx); err != nil {
			log.Fatal().Err(err).Msg("init task_graphs table")
		}
		// Compliance state stays in memory when the graph lives in Postgres;
		// it is rebuilt from events and safe to lose on restart.
		return store, policyx.NewMemoryStateStore()

	default:
		upstashCfg := configx.MustNew[upstashx.Config]("UPSTASH")
		client, err := upstashx.NewClient(*upstashCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("build upstash client")
		}
		graphStore, err := graphx.NewRedisStore(client)
		if err != nil {
			log.Fatal().Err(err).Msg("build redis graph store")
		}
		policyStore, err := policyx.NewRedisStateStore(client)
		if err != nil {
			log.Fatal().Err(err).Msg("build redis policy store")
		}
		return graphStore, policyStore
	}
}

func runSession(ctx context.Context, engine *resolverx.Resolver) {
	sessionID := uuid.NewString()
	log.Info().Str("session_id", sessionID).Msg("session started")
	fmt.Println("Type a message, /resume, /state, or /end.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/end":
			if err := engine.EndSession(ctx, sessionID); err != nil {
				log.Error().Err(err).Msg("end session")
			}
			fmt.Println("Session ended.")
			return
		case line == "/resume":
			point, ok, err := engine.Resume(ctx, sessionID)
			if err != nil {
				log.Error().Err(err).Msg("resume")
				continue
			}
			if !ok {
				fmt.Println("Nothing to resume.")
				continue
			}
			fmt.Printf("Next step: [%s] %s (%s)\n", point.TaskID, point.Subject, point.Status)
		case line == "/state":
			snapshot, err := engine.State(ctx, sessionID)
			if err != nil {
				log.Error().Err(err).Msg("read state")
				continue
			}
			for k, v := range snapshot {
				fmt.Printf("%s=%s\n", k, v)
			}
		default:
			result, err := engine.HandleMessage(ctx, sessionID, line)
			if err != nil {
				log.Error().Err(err).Msg("handle message")
				continue
			}
			fmt.Println(result.Reply)
		}
	}
}
