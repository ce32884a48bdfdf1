package extraction

import (
	"fmt"
	"strings"

	"github.com/memstack/memstack/pkg/graphstore"
)

func entityTypeNames(schema *graphstore.SchemaContext) string {
	if schema == nil || len(schema.EntityTypes) == 0 {
		return "Entity"
	}
	names := make([]string, 0, len(schema.EntityTypes))
	for _, et := range schema.EntityTypes {
		names = append(names, et.Name)
	}
	return strings.Join(names, ", ")
}

func buildEntityExtractionPrompt(content string, schema *graphstore.SchemaContext) string {
	return fmt.Sprintf(`Extract entities mentioned in the text below.
Available entity types: %s

Respond with a JSON array of objects: {"name": str, "entity_type": str, "summary": str, "attributes": object}.
Only use the listed entity types. Omit entities you are not confident about.

Text:
%s`, entityTypeNames(schema), content)
}

func buildReflexionPrompt(content string, current []EntityNode, schema *graphstore.SchemaContext) string {
	names := make([]string, 0, len(current))
	for _, e := range current {
		names = append(names, e.Name)
	}
	return fmt.Sprintf(`You previously extracted these entities from the text: %s

Review the text again and list any entities that were missed. Use the same
entity types as before: %s

Respond with a JSON array in the same shape as before: {"name": str, "entity_type": str, "summary": str, "attributes": object}.
If nothing was missed, respond with an empty array.

Text:
%s`, strings.Join(names, ", "), entityTypeNames(schema), content)
}

func buildRelationshipExtractionPrompt(content string, entities []EntityNode, schema *graphstore.SchemaContext) string {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, fmt.Sprintf("%s (%s)", e.Name, e.EntityType))
	}

	constraintNote := "No relationship-type constraints apply."
	if schema != nil && len(schema.EdgeTypeMap) > 0 {
		constraintNote = "Only use relationship types permitted for the entity-type pair, as established by the schema."
	}

	return fmt.Sprintf(`Given these entities: %s

Identify relationships between them mentioned in the text. %s

Respond with a JSON array of objects: {"from_entity": str, "to_entity": str, "relationship_type": str, "summary": str, "weight": number between 0 and 1}.
Only reference entities from the list above.

Text:
%s`, strings.Join(names, ", "), constraintNote, content)
}
