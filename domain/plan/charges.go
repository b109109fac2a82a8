package plan

// Rates holds the pricing policy for expense classification.
// These are policy constants, not derived values: they live in one place
// so repricing is a config change, not a code edit.
type Rates struct {
	// Community image generation is priced in kudos; one unit of account
	// per KudosPerUnit kudos.
	KudosPerUnit float64

	// External image generation is priced per generated image.
	ExternalImageUnitCost float64

	// Image description and video generation are priced per second of media.
	MediaSecondCost float64

	// Flat-rate video models are charged FlatVideoCost regardless of duration.
	FlatVideoCost       float64
	FlatRateVideoModels []string

	// Summarization is priced per SummaryTokenUnit tokens.
	SummaryTokenUnit float64
	SummaryUnitCost  float64

	// Proportional markup applied on top of raw provider cost when
	// computing the ledger debit. The recorded line item keeps the
	// pre-bonus amount.
	ImageBonus          float64
	VideoBonus          float64
	SummarizationBonus  float64
	ConversationalBonus float64

	// MaxExpenseHistory bounds the per-plan expense history.
	MaxExpenseHistory int
}

// DefaultRates returns the production pricing policy.
func DefaultRates() Rates {
	return Rates{
		KudosPerUnit:          4500,
		ExternalImageUnitCost: 0.02,
		MediaSecondCost:       0.0023,
		FlatVideoCost:         0.01,
		FlatRateVideoModels:   []string{"gen2"},
		SummaryTokenUnit:      1000,
		SummaryUnitCost:       0.002,
		ImageBonus:            0.10,
		VideoBonus:            0.05,
		SummarizationBonus:    0.10,
		ConversationalBonus:   0,
		MaxExpenseHistory:     DefaultMaxExpenseHistory,
	}
}

// isFlatRateVideo reports whether a model id belongs to the flat-rate tier.
func (r Rates) isFlatRateVideo(model string) bool {
	for _, m := range r.FlatRateVideoModels {
		if m == model {
			return true
		}
	}
	return false
}

// Charge is a classified expense ready to be applied to a ledger:
// the line item plus the bonus rate its category carries.
type Charge struct {
	Expense Expense
	Bonus   float64
}

// Conversational classifies a conversational-generation expense.
// The cost is caller supplied (already computed from provider pricing)
// and carries no markup.
// This is a PURE function.
func (r Rates) Conversational(model string, cost float64) Charge {
	return Charge{
		Expense: Expense{
			Type: CategoryConversational,
			Used: cost,
			Data: &ExpenseData{Model: model},
		},
		Bonus: r.ConversationalBonus,
	}
}

// CommunityImage classifies an image generated on the community horde,
// priced by the kudos the job consumed.
// This is a PURE function.
func (r Rates) CommunityImage(kudos float64) Charge {
	return Charge{
		Expense: Expense{
			Type: CategoryCommunityImage,
			Used: kudos / r.KudosPerUnit,
			Data: &ExpenseData{Kudos: kudos},
		},
		Bonus: r.ImageBonus,
	}
}

// ExternalImage classifies images generated by an external provider,
// priced per image.
// This is a PURE function.
func (r Rates) ExternalImage(count int) Charge {
	return Charge{
		Expense: Expense{
			Type: CategoryExternalImage,
			Used: float64(count) * r.ExternalImageUnitCost,
			Data: &ExpenseData{Count: count},
		},
		Bonus: r.ImageBonus,
	}
}

// ImageDescription classifies an image-description job, priced by
// processing duration.
// This is a PURE function.
func (r Rates) ImageDescription(durationMs int64) Charge {
	return Charge{
		Expense: Expense{
			Type: CategoryImageDescribe,
			Used: float64(durationMs) / 1000 * r.MediaSecondCost,
			Data: &ExpenseData{DurationMs: durationMs},
		},
		Bonus: r.ImageBonus,
	}
}

// VideoGeneration classifies a video-generation job. Duration-priced by
// default; flat-rate tier models are charged a fixed amount instead.
// This is a PURE function.
func (r Rates) VideoGeneration(model string, durationMs int64) Charge {
	used := float64(durationMs) / 1000 * r.MediaSecondCost
	if r.isFlatRateVideo(model) {
		used = r.FlatVideoCost
	}
	return Charge{
		Expense: Expense{
			Type: CategoryVideo,
			Used: used,
			Data: &ExpenseData{Model: model, DurationMs: durationMs},
		},
		Bonus: r.VideoBonus,
	}
}

// Summarization classifies a content-summarization job, priced by total
// token throughput.
// This is a PURE function.
func (r Rates) Summarization(promptTokens, completionTokens int64, url string) Charge {
	total := promptTokens + completionTokens
	return Charge{
		Expense: Expense{
			Type: CategorySummarization,
			Used: float64(total) / r.SummaryTokenUnit * r.SummaryUnitCost,
			Data: &ExpenseData{Tokens: total, URL: url},
		},
		Bonus: r.SummarizationBonus,
	}
}
