package graphstore

import (
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateIdentifier enforces the strict ASCII-letter/digit/underscore
// allowlist used for labels, relationship types, and property keys before
// they are interpolated into a Cypher query string. This is the only line
// of defense against Cypher injection through dynamic labels/types, since
// the driver has no parameter placeholder for them.
func validateIdentifier(identifier, context string) error {
	if identifier == "" {
		return fmt.Errorf("invalid %s: empty string", context)
	}
	if !identifierPattern.MatchString(identifier) {
		return fmt.Errorf("invalid %s %q: must start with an ASCII letter or underscore and contain only ASCII letters, digits, and underscores", context, identifier)
	}
	return nil
}

func validateIdentifiers(identifiers []string, context string) error {
	for _, id := range identifiers {
		if err := validateIdentifier(id, context); err != nil {
			return err
		}
	}
	return nil
}
