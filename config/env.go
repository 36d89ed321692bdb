package config

import (
	"supervisor/pkg/types"
	"supervisor/pkg/utils"

	"strings"

	"github.com/joho/godotenv"
)

var Env = Environment{}

type Environment struct {
	EnvName  types.EnvName
	YamlMode types.YamlMode
}

func init() {
	godotenv.Load()
	Env = ParseEnvironment(utils.LoadEnvWithDefault("ENVIRONMENT", "local"), utils.LoadEnvWithDefault("YAML_MODE", "LOCAL"))
}

func ParseEnvironment(env string, yamlMode string) Environment {
	var e Environment
	switch strings.ToLower(env) {
	case "prod", "production":
		e.EnvName = types.EnvProd
	case "dev", "staging":
		e.EnvName = types.EnvDev
	default:
		e.EnvName = types.EnvLocal
	}
	switch strings.ToUpper(yamlMode) {
	case string(types.YamlModeS3):
		e.YamlMode = types.YamlModeS3
	default:
		e.YamlMode = types.YamlModeLocal
	}
	return e
}
