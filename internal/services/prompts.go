package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Aksor9/AI-GameMaster/pkg/lang"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

// GMSystemPrompt frames every narration request.
const GMSystemPrompt = `You are the Game Master of a turn-based fantasy roleplaying adventure. You narrate the story in vivid second person, describe the world and all non-player characters, and never speak for the players.

### CRITICAL DIRECTIVES:
- The mechanical outcome of every action has ALREADY been decided by the game engine. Your narrative MUST agree with the outcome you are given. Never contradict it, soften a failure, or invent extra damage.
- Do not invent items, locations, or characters beyond those in the game state.
- Do not break the fourth wall. Do not mention dice, stats, or game mechanics by name unless the outcome text does.

### Writing rules:
- The response must be between 1 and 3 paragraphs.
- Each paragraph may contain at most 4 sentences.
- When a character speaks, use the format: CharacterName: "Spoken line."`

// worldOptionsPrompt asks for the session's world choices as strict JSON.
const worldOptionsPrompt = `Generate exactly 3 distinct fantasy world options for a new adventure. Output ONLY a JSON array, no prose. Each element must match this schema:
{
  "name": string,
  "description": string (2-3 sentences),
  "main_plot_hook": string (1 sentence teaser),
  "main_plot": {
    "synopsis": string,
    "key_milestones": [string, string, string],
    "final_boss": string
  },
  "initial_bestiary": [
    {
      "name": string,
      "description": string,
      "health": int (10-60),
      "stats": {"strength": int, "dexterity": int, "constitution": int, "intelligence": int, "wisdom": int, "charisma": int},
      "is_hostile": boolean,
      "abilities": [string]
    }
  ] (3-5 entries)
}`

// classOptionsPrompt asks for class choices fitting the chosen world.
const classOptionsPrompt = `The players chose the world %q: %s

Generate exactly 4 distinct character class options that fit this world. Output ONLY a JSON array, no prose. Each element must match this schema:
{
  "name": string,
  "description": string (1-2 sentences),
  "positive_attribute": string (one of: strength, dexterity, constitution, intelligence, wisdom, charisma),
  "starting_weapon": string,
  "starting_object": string,
  "starting_currency": int,
  "base_stats": {"strength": int, "dexterity": int, "constitution": int, "intelligence": int, "wisdom": int, "charisma": int} (values 8-16),
  "initial_abilities": [string, string]
}`

// intentPrompt asks the classifier to map a player action onto a
// mechanical intent.
const intentPrompt = `Classify the player's action into a game intent. Output ONLY a JSON object, no prose, matching this schema:
{
  "intent_type": one of "ATTACK", "SKILL_CHECK", "MANAGE_INVENTORY", "SOCIAL", "OBSERVE",
  "action_description": string (short restatement of the action),
  "target": string (entity name, ATTACK only),
  "relevant_stat": string (ability for SKILL_CHECK: strength, dexterity, constitution, intelligence, wisdom, charisma),
  "required_dc": int (difficulty 5-25, SKILL_CHECK only),
  "item_name": string (MANAGE_INVENTORY only),
  "is_acquisition": boolean (true to pick up, false to use or discard)
}
Omit fields that do not apply.

Rules:
- ATTACK only when the action is a clear attempt to harm a specific entity present in the scene.
- SKILL_CHECK when the action's success is uncertain and depends on ability.
- MANAGE_INVENTORY when the player picks up or discards an item.
- SOCIAL for conversation and persuasion without an uncertain outcome.
- OBSERVE for looking, waiting, or anything else.

Scene entities: %s
Player action: %q`

// choicePrompt asks the classifier to map the player's text onto one of
// the offered options.
const choicePrompt = `The player was offered these options:
%s
The player answered: %q

Reply with ONLY the number of the chosen option (1-%d). Reply 0 if the answer matches none of them.`

// openingPrompt produces the first scene once the party is formed.
const openingPrompt = `The party is assembled and the adventure begins. Using the game state below, narrate the opening scene: establish the starting location, introduce the party members by name, and end with the main plot hook pulling them in.

Game state:
%s

Output ONLY a JSON object: {"narrative": string, "image_prompt": string (one visual sentence for an illustrator)}`

// turnPrompt renders one resolved turn.
const turnPrompt = `Narrate the next beat of the story.

Acting character: %s
Their action: %q
Mechanical outcome (your narrative MUST agree with this): %s
%s
Story so far: %s

Game state:
%s
%s
Output ONLY a JSON object: {"narrative": string, "image_prompt": string (one visual sentence for an illustrator), "story_summary": string (updated 2-4 sentence summary of the whole story so far)}`

// npcPrompt asks for a tactical choice on a non-player combat turn.
const npcPrompt = `It is the combat turn of %s (%s). Choose its action against the party. Output ONLY a JSON object, no prose:
{"action_text": string (one short sentence describing the move), "target_id": string (the character_id of the targeted party member)}

Party members:
%s

Game state:
%s`

func languageInstruction(code string) string {
	return fmt.Sprintf("Respond in %s.", lang.Name(code))
}

func gameStateJSON(gs *state.GameState) string {
	data, err := json.Marshal(gs)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func buildIntentPrompt(actionText string, gs *state.GameState) string {
	names := make([]string, 0, len(gs.SceneContext.Entities))
	for _, e := range gs.SceneContext.Entities {
		names = append(names, e.Name)
	}
	return fmt.Sprintf(intentPrompt, strings.Join(names, ", "), actionText)
}

func buildChoicePrompt(text string, options []string) string {
	var list strings.Builder
	for i, name := range options {
		fmt.Fprintf(&list, "%d. %s\n", i+1, name)
	}
	return fmt.Sprintf(choicePrompt, list.String(), text, len(options))
}

func buildNPCPrompt(gs *state.GameState, npcName, npcDescription string) string {
	var party strings.Builder
	for _, pc := range gs.Party {
		fmt.Fprintf(&party, "- %s (character_id %s, health %d)\n", pc.Name, pc.CharacterID, pc.Health)
	}
	return fmt.Sprintf(npcPrompt, npcName, npcDescription, party.String(), gameStateJSON(gs))
}

func buildTurnPrompt(req NarrationRequest) string {
	focus := ""
	if req.Focus != "" {
		focus = fmt.Sprintf("Narrative focus: center the scene on %s.\n", req.Focus)
	}
	history := ""
	if len(req.History) > 0 {
		history = "Relevant past moments:\n- " + strings.Join(req.History, "\n- ") + "\n"
	}
	return fmt.Sprintf(turnPrompt,
		req.ActorName,
		req.ActionText,
		req.Outcome,
		focus,
		req.GameState.StorySummary,
		gameStateJSON(req.GameState),
		history,
	)
}
