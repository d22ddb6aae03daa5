package endpoints

import (
	"github.com/fablepress/fable/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&StatusEndpoint{},

		// Generation endpoints
		&StartGenerationEndpoint{},
		&RunStatusEndpoint{},
		&CancelRunEndpoint{},
		&BookResultEndpoint{},

		// Narration endpoints
		&NarrateEndpoint{},
		&VoicesEndpoint{},

		// Bundle endpoints
		&BundleEndpoint{},
		&BundleDownloadEndpoint{},

		// Preference endpoints
		&GetPrefsEndpoint{},
		&SetPrefsEndpoint{},
	}
}
