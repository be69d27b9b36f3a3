package mcpserver

// EntryFormatContract describes the canonical YAML record format that LLM
// consumers should follow when writing entries or summaries.
const EntryFormatContract = `# Algerknown Entry Format Contract

Every YAML record stored in Algerknown MUST follow this structure.

## Entry (entries/<id>.yaml)

` + "```" + `yaml
id: zk-note-001                     # REQUIRED - unique, kebab-case
type: entry                         # REQUIRED - "entry" or "summary"
topic: zk-proofs                    # REQUIRED - topic slug for grouping
date: 2026-08-01                    # OPTIONAL - ISO-8601 date
status: active                      # OPTIONAL - freeform status
tags:                               # OPTIONAL - YAML list
  - recursion
  - snark
summary: One-line description       # OPTIONAL
context: Why this was explored      # OPTIONAL
approach: What was tried            # OPTIONAL
learnings:                          # OPTIONAL
  - insight: The specific takeaway
    context: When it applies
    details: Longer explanation
    relevance:                      # ids of records this informs
      - zk-summary
decisions:                          # OPTIONAL
  - decision: What was decided
    rationale: Why
    date: 2026-08-01
open_questions:                     # OPTIONAL - list of strings
  - Is folding cheaper than recursion?
outcome:                            # OPTIONAL
  worked:
    - What went well
  failed:
    - What did not
  surprised:
    - What was unexpected
links:                              # OPTIONAL - typed references
  - id: zk-summary
    relationship: informs           # informs | depends_on | relates_to
    notes: Free text
` + "```" + `

## Summary (summaries/<id>.yaml)

Summaries use the same schema with ` + "`" + `type: summary` + "`" + ` and a
` + "`" + `date_range` + "`" + ` instead of ` + "`" + `date` + "`" + `:

` + "```" + `yaml
date_range:
  start: 2026-01-01
  end: 2026-08-01
` + "```" + `

## Rules

1. **` + "`" + `id` + "`" + ` is required** and must match the file name stem
   (` + "`" + `entries/zk-note-001.yaml` + "`" + ` has ` + "`" + `id: zk-note-001` + "`" + `).
2. **Ids and topics** are lowercase, kebab-case.
3. **Dates** are ISO-8601 (` + "`" + `YYYY-MM-DD` + "`" + `).
4. **` + "`" + `links[].id` + "`" + `** must reference an existing record id.
5. **Do not set ` + "`" + `last_ingested` + "`" + ` yourself** - the ingest
   pipeline stamps it.
6. **Encoding** is UTF-8.

Ingesting a record diffs it node-by-node against its previous version and
appends the changes to the changelog, so prefer small focused edits over
wholesale rewrites.
`
