package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const captionPrompt = `Describe the scene in one or two short sentences. ` +
	`Mention any people and what they are doing.`

const moodPromptTemplate = `This is my most recent internal thought: '%s'
As this voice inside me, how would I describe the mood I'm in? ` +
	`Reply with a number between -1 and +1. Just the number.`

// numberPattern matches the first signed decimal in the model's reply.
// Small models pad their answers; we take the first thing that parses.
var numberPattern = regexp.MustCompile(`[-+]?\d*\.?\d+`)

// Caption describes a camera frame.
func (c *Client) Caption(ctx context.Context, image []byte) (string, error) {
	caption, err := c.GenerateWithImage(ctx, captionPrompt, image)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(caption), nil
}

// EstimateMood asks the model to score a caption as a mood scalar in
// [-1, 1]. Replies without a parseable number are an error; callers keep
// the previous mood on failure.
func (c *Client) EstimateMood(ctx context.Context, caption string) (float64, error) {
	reply, err := c.Generate(ctx, fmt.Sprintf(moodPromptTemplate, caption))
	if err != nil {
		return 0, err
	}

	return ParseMoodReply(reply)
}

// ParseMoodReply extracts and clamps a mood scalar from a model reply.
func ParseMoodReply(reply string) (float64, error) {
	match := numberPattern.FindString(reply)
	if match == "" {
		return 0, fmt.Errorf("no mood value in reply %q", strings.TrimSpace(reply))
	}

	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("parse mood %q: %w", match, err)
	}

	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return v, nil
}
