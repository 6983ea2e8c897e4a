package ledger

import "fmt"

// Rule names a ledger delta rule.
type Rule string

const (
	RuleFirstOrPerPost        Rule = "first_or_per_post"
	RuleDeletePost            Rule = "delete_post"
	RuleLikeThreshold         Rule = "like_threshold"
	RuleLikeThresholdReversal Rule = "like_threshold_reversal"
)

const (
	FirstPostBalance   int64 = 7
	PerPostIncrement   int64 = 2
	DeletePostPenalty  int64 = 2
	LikeThresholdBonus int64 = 3
	LikeThreshold            = 10
)

// Delta is one rule application. Key identifies the triggering event; a key
// already present in the user's journal is never applied twice.
type Delta struct {
	Rule Rule   `json:"rule"`
	Key  string `json:"key"`
}

// Next returns the balance after applying rule to balance.
func Next(rule Rule, balance int64) int64 {
	switch rule {
	case RuleFirstOrPerPost:
		if balance == 0 {
			return FirstPostBalance
		}
		return balance + PerPostIncrement
	case RuleDeletePost:
		return floor(balance - DeletePostPenalty)
	case RuleLikeThreshold:
		return balance + LikeThresholdBonus
	case RuleLikeThresholdReversal:
		return floor(balance - LikeThresholdBonus)
	}
	return balance
}

func floor(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// PostCreated is the delta for a successful post.
func PostCreated(postID string) Delta {
	return Delta{Rule: RuleFirstOrPerPost, Key: fmt.Sprintf("post:%s:created", postID)}
}

// PostDeleted is the delta for an owner deleting a post.
func PostDeleted(postID string) Delta {
	return Delta{Rule: RuleDeletePost, Key: fmt.Sprintf("post:%s:deleted", postID)}
}

// LikeTransition returns the delta for a like count moving from before to
// after. Only 9→10 and 10→9 produce one. crossing is the post's threshold
// crossing count after the transition, which makes the key unique per crossing.
func LikeTransition(postID string, before, after int, crossing int64) (Delta, bool) {
	switch {
	case before == LikeThreshold-1 && after == LikeThreshold:
		return Delta{Rule: RuleLikeThreshold, Key: fmt.Sprintf("post:%s:threshold:%d", postID, crossing)}, true
	case before == LikeThreshold && after == LikeThreshold-1:
		return Delta{Rule: RuleLikeThresholdReversal, Key: fmt.Sprintf("post:%s:threshold:%d", postID, crossing)}, true
	}
	return Delta{}, false
}

// IsCrossing reports whether a like count transition crosses the threshold.
func IsCrossing(before, after int) bool {
	_, ok := LikeTransition("", before, after, 0)
	return ok
}
