package blip

import "context"

// generate performs greedy autoregressive decoding conditioned on enc,
// emitting at most maxTokens tokens. Greedy argmax keeps generation
// deterministic for a given image and question.
func (h *handle) generate(ctx context.Context, enc *encoding, maxTokens int) (string, error) {
	ids := []int64{h.cfg.BOSTokenID}

	for len(ids) <= maxTokens {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		logits, err := h.decodeStep(ids, enc)
		if err != nil {
			return "", err
		}

		next := argmax(logits)
		if next == h.cfg.EOSTokenID {
			break
		}
		ids = append(ids, next)
	}

	// Decode skips the start token and any control tokens that slipped
	// through, so an immediate EOS yields an empty string, not an error.
	return h.tk.Decode(ids[1:]), nil
}

func argmax(logits []float32) int64 {
	var best int64
	for i, v := range logits {
		if v > logits[best] {
			best = int64(i)
		}
	}
	return best
}
