// Package dictionaries imports all built-in dictionary packages to trigger
// their init() registration. Import this package for side effects only.
package dictionaries

import (
	// Import all dictionary packages to register them with the registry.
	_ "iso8583_parser/internal/dictionaries/iso87"
	_ "iso8583_parser/internal/dictionaries/iso93"
)
