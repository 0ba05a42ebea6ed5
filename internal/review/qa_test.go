package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
)

func TestQASubmit_MissingRequiredItemsNamed(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.seedArticle(t, content.StatusReview, content.RiskMedium)

	_, err := f.qa.Submit(context.Background(), a.ID, "standard-review",
		Actor{ID: "rev-1", Role: RoleReviewer},
		map[string]ItemResult{"tone_ok": {Checked: true}}, nil)

	var verr *QAValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"facts_verified"}, verr.MissingItems)

	// Nothing persisted on validation failure.
	result, err := f.store.LatestChecklistResult(context.Background(), a.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestQASubmit_CheckedItemWithoutEvidenceRejected(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.seedArticle(t, content.StatusReview, content.RiskHigh)

	_, err := f.qa.Submit(context.Background(), a.ID, "calculator-review",
		Actor{ID: "rev-1", Role: RoleReviewer},
		map[string]ItemResult{
			"formula_tested": {Checked: true},
			"inputs_bounded": {Checked: true},
		}, nil)

	var verr *QAValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"formula_tested"}, verr.MissingEvidence)

	result, err := f.store.LatestChecklistResult(context.Background(), a.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, result, "no result row may be persisted when evidence is absent")
}

func TestQASubmit_EvidenceAccepted(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.seedArticle(t, content.StatusReview, content.RiskHigh)

	result, err := f.qa.Submit(context.Background(), a.ID, "calculator-review",
		Actor{ID: "rev-1", Role: RoleReviewer},
		map[string]ItemResult{
			"formula_tested": {Checked: true, Notes: "verified against fixture table"},
			"inputs_bounded": {Checked: true},
		},
		map[string]Evidence{
			"formula_tested": {TestRunID: "run-8841", HarnessVersion: "2.3.1"},
		})

	require.NoError(t, err)
	assert.True(t, result.AllPassed)
	assert.Equal(t, 1, result.Revision)

	// The qa_completed ledger event accompanies the result.
	has, err := f.store.HasEvent(context.Background(), a.ID, 1, EventQACompleted)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestQASubmit_HistoryIsCumulative(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.seedArticle(t, content.StatusReview, content.RiskMedium)

	reviewer := Actor{ID: "rev-1", Role: RoleReviewer}

	first, err := f.qa.Submit(context.Background(), a.ID, "standard-review", reviewer,
		map[string]ItemResult{"facts_verified": {Checked: true}}, nil)
	require.NoError(t, err)

	second, err := f.qa.Submit(context.Background(), a.ID, "standard-review", reviewer,
		map[string]ItemResult{"facts_verified": {Checked: true}, "tone_ok": {Checked: true}}, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)

	latest, err := f.store.LatestChecklistResult(context.Background(), a.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID, "only the most recent result gates approval")
}

func TestQASubmit_UnknownTemplate(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.seedArticle(t, content.StatusReview, content.RiskMedium)

	_, err := f.qa.Submit(context.Background(), a.ID, "no-such-template",
		Actor{ID: "rev-1", Role: RoleReviewer}, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}
