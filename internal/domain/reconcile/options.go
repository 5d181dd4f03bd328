package reconcile

// Option applies a configuration option to the Summarizer.
type Option func(*Summarizer)

// WithPAPQuota sets the monthly PAP count required for qualified status.
func WithPAPQuota(quota float64) Option {
	return func(s *Summarizer) {
		if quota > 0 {
			s.papQuota = quota
		}
	}
}

// WithFineIncomeISK sets the income above which missing quota draws a fine.
func WithFineIncomeISK(income float64) Option {
	return func(s *Summarizer) {
		if income > 0 {
			s.fineIncomeISK = income
		}
	}
}

// WithRookieDays sets the protection window after a player's join date.
func WithRookieDays(days int) Option {
	return func(s *Summarizer) {
		if days > 0 {
			s.rookieDays = days
		}
	}
}

// WithUnclaimedTitle sets the bucket title for rows without a player.
func WithUnclaimedTitle(title string) Option {
	return func(s *Summarizer) {
		if title != "" {
			s.unclaimedTitle = title
		}
	}
}
