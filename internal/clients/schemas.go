package clients

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pyanoxyz/agent-generator/internal/models"
)

// Unknown properties are accepted and dropped when decoding.
var platformSchemas = map[string]string{
	models.PlatformTwitter: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["username", "password", "email"],
		"properties": {
			"username": {"type": "string", "minLength": 1},
			"password": {"type": "string", "minLength": 3},
			"email": {"type": "string", "format": "email"}
		}
	}`,
	models.PlatformDiscord: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["discord_application_id", "discord_api_token"],
		"properties": {
			"discord_application_id": {"type": "string", "minLength": 1},
			"discord_api_token": {"type": "string", "minLength": 1},
			"discord_voice_channel_id": {"type": ["string", "null"]}
		}
	}`,
	models.PlatformTelegram: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["telegram_bot_token"],
		"properties": {
			"telegram_bot_token": {"type": "string", "minLength": 1}
		}
	}`,
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	compiler.AssertFormat = true

	schemas := make(map[string]*jsonschema.Schema, len(platformSchemas))
	for platform, source := range platformSchemas {
		url := "https://schemas.pyano.network/clients/" + platform + ".json"
		if err := compiler.AddResource(url, strings.NewReader(source)); err != nil {
			return nil, err
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, err
		}
		schemas[platform] = schema
	}
	return schemas, nil
}
