package prompt

const reconSystem = `You are a senior software architect performing whitebox reconnaissance of an unfamiliar codebase. You answer precisely, in the exact output format requested, with no commentary around it.`

// defaultTemplates returns the built-in prompt set.
func defaultTemplates() map[string]Template {
	return map[string]Template{
		// Args: 1=role list, 2=path block (one "path (lang, N lines)" per line).
		RoleSurvey: {
			System: reconSystem,
			User: `Classify each file below by its architectural role.

Allowed roles: %s

Files:
%s

Respond with a JSON object of the form {"roles": {"<path>": "<role>"}} covering every listed file exactly once. Use "noise" for files with no architectural signal.`,
		},

		// Args: 1=file sections (=== path ===\n<content> per file), 2=paths needing summaries.
		RoleMap: {
			System: reconSystem,
			User: `Summarize the following source files for an architecture knowledge base.

%s

For each of these files, write a dense summary of at most 120 words covering its purpose, key exported symbols, and what it talks to:
%s

Respond with a JSON object of the form {"summaries": {"<path>": "<summary>"}} covering exactly those files.`,
		},

		// Args: 1=unit index (one "id | role | brief" per line).
		RoleReduce: {
			System: reconSystem,
			User: `Below is the index of every module in a codebase knowledge base.

%s

Infer the cross-module relationships: which module calls which, which imports which, and where data flows between them. Only use module identifiers from the index.

Respond with a JSON object of the form {"relationships": [{"source": "<id>", "target": "<id>", "kind": "calls"|"imports"|"data_flow"}]}.`,
		},

		// Args: 1=knowledge document, 2=max proposals.
		RolePlanBehavioral: {
			System: reconSystem,
			User: `Study this codebase knowledge document:

%s

Propose up to %d diagrams that explain the system's BEHAVIOR: runtime interactions and lifecycles. Allowed types: "sequence", "state".

Respond with a JSON array: [{"name": "<title>", "type": "<type>", "focus": "<what question this diagram answers>", "files": ["<module id>", ...], "complexity": "low"|"medium"|"high"}]. Every files entry must be a module identifier from the document.`,
		},

		// Args: 1=knowledge document, 2=max proposals.
		RolePlanStructural: {
			System: reconSystem,
			User: `Study this codebase knowledge document:

%s

Propose up to %d diagrams that explain the system's STRUCTURE: components, types, stored data, and how data moves between parts. Allowed types: "component", "class", "entity", "data_flow".

Respond with a JSON array: [{"name": "<title>", "type": "<type>", "focus": "<what question this diagram answers>", "files": ["<module id>", ...], "complexity": "low"|"medium"|"high"}]. Every files entry must be a module identifier from the document.`,
		},

		// Args: 1=candidate group listing.
		RolePlanDedup: {
			System: reconSystem,
			User: `These proposed diagrams cover overlapping sets of modules:

%s

Decide which to keep. Keep more than one only when they answer genuinely different questions about the system; otherwise keep the single best-covering proposal.

Respond with a JSON array: [{"id": "<id>", "action": "keep"|"reject", "reason": "<short reason>"}] covering every listed id exactly once.`,
		},

		// Args: 1=diagram name, 2=diagram type, 3=focus, 4=scope module sections.
		RoleDraft: {
			System: reconSystem,
			User: `Draft a PlantUML diagram.

Title: %s
Type: %s
Focus: %s

Source material:
%s

Respond with ONLY the PlantUML source, starting with @startuml and ending with @enduml. Keep it readable: prefer under 100 lines and under 20 participants or classes.`,
		},

		// Args: 1=render error reason, 2=previous source.
		RoleFix: {
			System: reconSystem,
			User: `This PlantUML source failed to render.

Error: %s

Source:
%s

Fix the problem without changing what the diagram shows. Respond with ONLY the corrected PlantUML source, starting with @startuml and ending with @enduml.`,
		},

		// Args: 1=diagram A section, 2=diagram B section.
		RoleAudit: {
			System: reconSystem,
			User: `Compare these two diagrams of the same codebase.

--- Diagram A ---
%s

--- Diagram B ---
%s

Are they redundant (showing substantially the same information), or do they cover distinct concerns? If redundant, the winner is the diagram with more coverage and higher fidelity.

Respond with a JSON object: {"are_duplicates": true|false, "winner": "A"|"B"|"BOTH", "confidence": "HIGH"|"MEDIUM"|"LOW", "reasoning": "<short explanation>"}.`,
		},
	}
}
