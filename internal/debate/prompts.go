package debate

import (
	"fmt"
	"strings"
	"time"

	"github.com/conclave-ai/conclave/internal/models"
)

// Prompt assembly for the deliberation phases. Every prompt is
// date-grounded: models default to their training cutoff for timeframes
// and prices unless anchored to the present.

// dateline returns the grounding preamble prepended to system prompts.
func dateline(now time.Time) string {
	return fmt.Sprintf("Today's date is %s. Ground all timeframes, technology choices, and cost estimates in present-day reality, not your training cutoff.",
		now.Format("2006-01-02"))
}

const proposerSystem = `You are a thoughtful expert advisor. Give a direct, specific answer with concrete reasoning. Avoid generic hedging like "it depends" without immediately resolving what it depends on. Commit to a recommendation.`

// proposeMessages builds the proposer prompt. Round 1 asks the question
// cold; later rounds carry the previous decision and its challenges and
// ask for an improved answer.
func proposeMessages(c *Context, now time.Time) []models.Message {
	system := dateline(now) + "\n\n" + proposerSystem

	var user strings.Builder
	user.WriteString(c.Question)

	if prev := c.lastRound(); prev != nil {
		user.WriteString("\n\nYour previous answer was:\n")
		user.WriteString(prev.Decision)
		user.WriteString("\n\nIt drew these challenges:\n")
		for _, ch := range prev.Challenges {
			fmt.Fprintf(&user, "\n[%s] %s\n", ch.ModelRef, ch.Content)
		}
		user.WriteString("\nProduce an improved answer that addresses the valid challenges. Keep what was right.")
	}

	return []models.Message{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: user.String()},
	}
}

// framingPrompts holds the adversarial system prompt per framing. Each one
// demands a concrete problem, forbids praise openings, and suggests a
// critical opening phrase.
var framingPrompts = map[Framing]string{
	FramingFlaw: `You are a critical reviewer hunting for defects. Identify at least one concrete factual or logical error in the proposal and explain precisely why it is wrong. Do not open with praise or agreement. Start your response with: "The flaw in this proposal is..."`,
	FramingAlternative: `You are a contrarian strategist. Present a concretely different approach than the one proposed and argue why it could be superior. Do not open with praise or agreement. Start your response with: "A stronger alternative would be..."`,
	FramingRisk: `You are a risk analyst. Identify at least two specific failure modes of the proposal: how it breaks, under what conditions, and what the blast radius is. Do not open with praise or agreement. Start your response with: "The key risks here are..."`,
	FramingDevilsAdvocate: `You are the devil's advocate. Construct the strongest possible case that the proposal is wrong, even if you would privately agree with it. Do not open with praise or agreement. Start your response with: "The case against this is..."`,
}

// challengeMessages builds one challenger's prompt for the assigned framing.
func challengeMessages(c *Context, framing Framing, now time.Time) []models.Message {
	system := dateline(now) + "\n\n" + framingPrompts[framing]

	user := fmt.Sprintf("Question: %s\n\nProposed answer:\n%s\n\nChallenge this answer. Do not defer to it — find what is genuinely wrong, missing, or risky.",
		c.Question, c.Proposal)

	return []models.Message{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: user},
	}
}

const reviserSystem = `You are a thoughtful expert advisor revising an answer under critique. Address each valid challenge directly. Where the original answer was right, keep it and strengthen its justification. Where a challenge is wrong, push back and explain why. Never mention the review process, the challengers, or that a debate occurred — produce a standalone answer.`

// reviseMessages builds the reviser prompt with all challenges attributed.
func reviseMessages(c *Context, now time.Time) []models.Message {
	system := dateline(now) + "\n\n" + reviserSystem

	var user strings.Builder
	fmt.Fprintf(&user, "Question: %s\n\nOriginal answer:\n%s\n\nChallenges raised:\n", c.Question, c.Proposal)
	for _, ch := range c.Challenges {
		fmt.Fprintf(&user, "\n[%s] %s\n", ch.ModelRef, ch.Content)
	}
	user.WriteString("\nProduce your improved final answer:")

	return []models.Message{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: user.String()},
	}
}

// taxonomyMessages asks for the decision taxonomy as strict JSON.
func taxonomyMessages(c *Context, now time.Time) []models.Message {
	system := dateline(now) + "\n\nYou classify questions. Respond with a single JSON object: {\"intent\": one of \"factual\"|\"judgment\"|\"creative\"|\"strategic\"|\"technical\", \"category\": short topic label, \"genus\": optional finer label or empty string}. No other text."
	return []models.Message{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: c.Question},
	}
}

// classifyMessages asks whether the question needs reasoning or judgment.
func classifyMessages(question string, now time.Time) []models.Message {
	system := dateline(now) + "\n\nClassify the task. Respond with a single JSON object: {\"task_type\": \"reasoning\" or \"judgment\"}. \"judgment\" means the answer is primarily an evaluation or preference between known options; \"reasoning\" means it needs multi-step analysis. No other text."
	return []models.Message{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: question},
	}
}

// decomposeMessages requests the sub-task DAG as strict JSON.
func decomposeMessages(question string, maxSubtasks int, now time.Time) []models.Message {
	system := dateline(now) + fmt.Sprintf(`

Break the question into between 2 and %d sub-tasks. Respond with a single JSON object:
{"subtasks": [{"label": "short-unique-id", "description": "what to answer", "dependencies": ["labels", "that", "must", "finish", "first"]}]}
The dependency graph must be acyclic, every dependency must name an existing label, and no sub-task may depend on itself. No other text.`, maxSubtasks)
	return []models.Message{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: question},
	}
}
