package extraction

import (
	"fmt"
	"strings"

	"silent-partners/backend/internal/network"
)

const extractionSystemPrompt = "You are an expert at analyzing documents and extracting network relationships. Always return valid JSON."

const inferenceSystemPrompt = "You are an expert at network analysis and finding implicit connections. Always return valid JSON."

const extractionTemplate = `Analyze the following text and extract all entities (people, organizations, locations, events) and their relationships.

Return a JSON object with this structure:
{
  "entities": [
    {
      "id": "unique_id",
      "name": "Entity Name",
      "type": "person|organization|location|event|financial_institution|government_entity",
      "importance": 1-10,
      "description": "Brief description"
    }
  ],
  "relationships": [
    {
      "source": "entity_id",
      "target": "entity_id",
      "type": "financial|employment|personal|legal|ownership|other",
      "description": "Relationship description",
      "status": "confirmed|suspected|former",
      "value": "monetary value if applicable",
      "date": "date or year if stated"
    }
  ]
}

Text to analyze:
%s

Return ONLY the JSON object, no additional text.`

const inferenceTemplate = `Given these entities and their known relationships, identify any MISSING connections that are likely but not explicitly stated.

ENTITIES:
%s

KNOWN RELATIONSHIPS:
%s

CANDIDATES FROM GRAPH ANALYSIS (verify or reject each):
%s

ORIGINAL TEXT (for context):
%s

Analyze the entities and find implicit or transitive relationships that are missing. Consider:
1. Co-occurrence (entities mentioned together)
2. Transitive connections (if A→B and B→C, is there A→C?)
3. Implicit relationships (colleagues, partners, etc.)

Use entity names exactly as listed for source and target.

Return a JSON object:
{
  "inferred_relationships": [
    {
      "source": "entity name",
      "target": "entity name",
      "type": "relationship_type",
      "description": "Why this relationship is inferred",
      "confidence": 0.0-1.0,
      "evidence": "Evidence from text or logical inference"
    }
  ]
}

Return ONLY the JSON object.`

func buildExtractionPrompt(text string) string {
	return fmt.Sprintf(extractionTemplate, text)
}

func buildInferencePrompt(entities []network.EntityInput, relationships []network.RelationshipInput, candidates []network.Candidate, text string) string {
	var ents strings.Builder
	for _, e := range entities {
		if e.Name == nil || *e.Name == "" {
			continue
		}
		typ := network.DefaultEntityType
		if e.Type != nil && *e.Type != "" {
			typ = *e.Type
		}
		desc := "No description"
		if e.Description != nil && *e.Description != "" {
			desc = *e.Description
		}
		fmt.Fprintf(&ents, "- %s (%s): %s\n", *e.Name, typ, desc)
	}

	var rels strings.Builder
	for _, r := range relationships {
		if r.Source == nil || r.Target == nil {
			continue
		}
		typ := network.DefaultRelationshipType
		if r.Type != nil && *r.Type != "" {
			typ = *r.Type
		}
		fmt.Fprintf(&rels, "- %s → %s: %s\n", *r.Source, *r.Target, typ)
	}
	if rels.Len() == 0 {
		rels.WriteString("(none)\n")
	}

	var cands strings.Builder
	for i, c := range candidates {
		if i == maxPromptCandidates {
			break
		}
		fmt.Fprintf(&cands, "- %s ↔ %s (%.2f, %s): %s\n", c.Source, c.Target, c.Confidence,
			strings.Join(c.Methods, ", "), truncate(strings.Join(c.Evidence, " | "), candidateEvidenceChars))
	}
	if cands.Len() == 0 {
		cands.WriteString("(none)\n")
	}

	return fmt.Sprintf(inferenceTemplate,
		strings.TrimRight(ents.String(), "\n"),
		strings.TrimRight(rels.String(), "\n"),
		strings.TrimRight(cands.String(), "\n"),
		truncate(text, inferenceContextChars),
	)
}
