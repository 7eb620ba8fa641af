// Package autoload configures the global logger from the environment as a
// side effect of being imported. Blank-import it from main.
package autoload

import (
	configx "github.com/kittipos/Casemate-Support-Resolution-Engine/pkg/config"
	logx "github.com/kittipos/Casemate-Support-Resolution-Engine/pkg/logger"
)

func init() {
	cfg, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*cfg)
}
