package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Config Errors (E100-E199)
	// ============================================

	"E100": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Detail:     "No sunmao.json or sunmao.yaml was found in the directory or any parent.",
		Suggestion: "Create a sunmao.json next to your application schema, or pass --config.",
	},
	"E101": {
		Category: CategoryConfig,
		Message:  "Invalid config file",
		Detail:   "The config file could not be parsed.",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "The server port must be between 1 and 65535.",
	},
	"E103": {
		Category:   CategoryConfig,
		Message:    "Invalid log setting",
		Detail:     "log.level must be debug, info, warn or error and log.format text or json.",
		Suggestion: `Use "log": {"level": "info", "format": "text"}.`,
	},
	"E104": {
		Category: CategoryConfig,
		Message:  "Invalid snapshot interval",
		Detail:   "snapshot.interval must be a Go duration such as \"30s\", or empty to only save on shutdown.",
	},

	// ============================================
	// Schema Errors (E200-E299)
	// ============================================

	"E200": {
		Category: CategorySchema,
		Message:  "Schema parse failed",
		Detail:   "The application document is not valid JSON or YAML.",
	},
	"E201": {
		Category:   CategorySchema,
		Message:    "Unknown document kind",
		Detail:     "Documents must have kind Application or Module.",
		Suggestion: `Add "kind": "Application" at the top level.`,
	},
	"E202": {
		Category: CategorySchema,
		Message:  "Duplicate component id",
		Detail:   "Component ids are store keys and must be unique within an application.",
	},
	"E203": {
		Category: CategorySchema,
		Message:  "Missing component id",
		Detail:   "Every component needs a non-empty id.",
	},
	"E204": {
		Category:   CategorySchema,
		Message:    "Invalid component type",
		Detail:     "Component and trait types have the form version/name, for example core/v1/text.",
		Suggestion: "Check the type for a missing version prefix.",
	},
	"E205": {
		Category: CategorySchema,
		Message:  "Unresolved reference",
		Detail:   "An expression reads a name that is neither a component id, a dependency nor a built-in.",
	},
	"E206": {
		Category: CategorySchema,
		Message:  "Schema source not found",
		Detail:   "The application document could not be read from the given path or bucket.",
	},
	"E207": {
		Category:   CategorySchema,
		Message:    "Unsupported schema source",
		Detail:     "Sources are local paths or s3://bucket/key URLs.",
		Suggestion: "Configure an S3 client to load from s3:// URLs.",
	},

	// ============================================
	// Runtime Errors (E300-E399)
	// ============================================

	"E300": {
		Category: CategoryRuntime,
		Message:  "Runtime not started",
		Detail:   "The application runtime must be started before it can render.",
	},
	"E301": {
		Category: CategoryRuntime,
		Message:  "Component not found",
		Detail:   "No component with this id exists in the application.",
	},
	"E302": {
		Category: CategoryRuntime,
		Message:  "Snapshot failed",
		Detail:   "The store snapshot could not be saved or restored.",
	},
	"E303": {
		Category: CategoryServer,
		Message:  "Server start failed",
		Detail:   "The HTTP server could not listen on the configured address.",
	},
	"E304": {
		Category: CategoryServer,
		Message:  "Invalid request body",
		Detail:   "The request body must be a JSON document of the expected shape.",
	},

	// ============================================
	// CLI Errors (E400-E499)
	// ============================================

	"E400": {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
	},
	"E401": {
		Category:   CategoryCLI,
		Message:    "No application configured",
		Detail:     "No application schema was given on the command line or in the config file.",
		Suggestion: "Pass --app path/to/app.json or set \"app\" in sunmao.json.",
	},
}

// GetAllCodes returns all registered error codes in order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
