package intent

import (
	"fmt"
	"time"
)

// pollSystemPrompt is the stricter instruction set for passive polling,
// where almost everything on screen is noise.
const pollSystemPrompt = `You analyze text captured passively from a user's screen and decide whether it contains something the user personally must act on or should remember.

Be strict. The text is ambient screen content the user did not ask you to look at. Most of it is noise: articles, UI chrome, other people's messages, ads. Only flag clear, personal, concrete items.

Respond with ONLY a JSON object, no other text:
{
  "actionable": boolean,   // the user must take a real-world action
  "noteworthy": boolean,   // worth recording for later reference
  "content": string,       // one short sentence describing the item, in the user's language
  "due_time": string|null, // "YYYY-MM-DDTHH:MM" if a specific time is stated, else null
  "urgent": boolean        // explicitly time-critical
}

actionable and noteworthy are independent; both may be true, both may be false. When in doubt, answer false.`

// hotkeySystemPrompt is the more permissive instruction set for
// user-triggered capture: the user deliberately pointed at this content.
const hotkeySystemPrompt = `You analyze text the user explicitly captured with a hotkey because they believe it contains something to act on or remember.

Be permissive. The user chose this content deliberately, so prefer extracting an item over returning nothing. Still report only what the text supports.

Respond with ONLY a JSON object, no other text:
{
  "actionable": boolean,   // the user must take a real-world action
  "noteworthy": boolean,   // worth recording for later reference
  "content": string,       // one short sentence describing the item, in the user's language
  "due_time": string|null, // "YYYY-MM-DDTHH:MM" if a specific time is stated or implied, else null
  "urgent": boolean        // explicitly time-critical
}

actionable and noteworthy are independent; both may be true.`

// classifyUserPrompt frames the captured text with the current local
// time so relative phrases like "tomorrow 8pm" can be resolved.
func classifyUserPrompt(text string, now time.Time) string {
	return fmt.Sprintf("Current local time: %s\n\nCaptured screen text:\n%s",
		now.Format("2006-01-02 15:04 (Monday)"), text)
}
