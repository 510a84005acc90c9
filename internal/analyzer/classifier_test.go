package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YKarmar/appledger/internal/config"
	"github.com/YKarmar/appledger/internal/types"
)

func defaultClassifier() *Classifier {
	return NewClassifier(Keywords{
		Confirmation: config.DefaultConfirmationKeywords(),
		Exclusion:    config.DefaultExclusionKeywords(),
	})
}

type fetchRecorder struct {
	body  string
	err   error
	calls int
}

func (f *fetchRecorder) fetch(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.body, f.err
}

func TestClassifySubject(t *testing.T) {
	c := defaultClassifier()
	tests := []struct {
		subject  string
		expected types.Decision
	}{
		{"Thank you for applying to Acme Corp — Backend Engineer (Job ID: 4821)", types.DecisionConfirmed},
		{"Your assessment for the Backend Engineer role at Acme Corp", types.DecisionRejected},
		{"APPLICATION RECEIVED: Data Analyst", types.DecisionConfirmed},
		{"Application received - unfortunately the role is closed", types.DecisionRejected},
		{"Interview invitation: thanks for applying", types.DecisionRejected},
		{"Your weekly digest", types.DecisionInconclusive},
		{"", types.DecisionInconclusive},
		{"We’ve received   your application", types.DecisionConfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.ClassifySubject(tt.subject))
		})
	}
}

func TestClassifyBodyCollapsesInconclusive(t *testing.T) {
	c := defaultClassifier()
	assert.Equal(t, types.DecisionRejected, c.ClassifyBody("Hello, see attached."))
	assert.Equal(t, types.DecisionConfirmed, c.ClassifyBody("We have received your application."))
	assert.Equal(t, types.DecisionRejected, c.ClassifyBody("We have received your application. Unfortunately ..."))
}

func TestClassifySubjectStageSkipsBodyFetch(t *testing.T) {
	c := defaultClassifier()
	f := &fetchRecorder{body: "we have received your application"}

	for _, subject := range []string{
		"Thank you for applying to Acme Corp",
		"Your assessment for the Backend Engineer role at Acme Corp",
	} {
		email := &types.Email{ID: "m1", Subject: subject}
		v, err := c.Classify(context.Background(), email, f.fetch)
		require.NoError(t, err)
		assert.Equal(t, types.StageSubject, v.Stage)
		assert.Empty(t, email.BodyText)
	}
	assert.Zero(t, f.calls)
}

func TestClassifyBodyStage(t *testing.T) {
	c := defaultClassifier()

	t.Run("body confirms", func(t *testing.T) {
		f := &fetchRecorder{body: "Hi Sam,\nWe have received your application and will be in touch."}
		email := &types.Email{ID: "m2", Subject: "Next steps at Globex"}

		v, err := c.Classify(context.Background(), email, f.fetch)
		require.NoError(t, err)
		assert.Equal(t, types.DecisionConfirmed, v.Decision)
		assert.Equal(t, types.StageBody, v.Stage)
		assert.Equal(t, "we have received your application", v.Matched)
		assert.Equal(t, 1, f.calls)
		assert.Contains(t, email.BodyText, "received your application")
	})

	t.Run("still inconclusive", func(t *testing.T) {
		f := &fetchRecorder{body: "Lunch on Friday?"}
		v, err := c.Classify(context.Background(), &types.Email{ID: "m3", Subject: "hey"}, f.fetch)
		require.NoError(t, err)
		assert.Equal(t, types.DecisionRejected, v.Decision)
		assert.Equal(t, types.StageBody, v.Stage)
	})

	t.Run("preloaded body is reused", func(t *testing.T) {
		f := &fetchRecorder{}
		email := &types.Email{ID: "m4", Subject: "hello", BodyText: "Thanks for your application!"}
		v, err := c.Classify(context.Background(), email, f.fetch)
		require.NoError(t, err)
		assert.True(t, v.Confirmed())
		assert.Zero(t, f.calls)
	})

	t.Run("fetch error propagates", func(t *testing.T) {
		boom := errors.New("connection reset")
		f := &fetchRecorder{err: boom}
		_, err := c.Classify(context.Background(), &types.Email{ID: "m5", Subject: "hello"}, f.fetch)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	})
}

func TestExclusionPrecedence(t *testing.T) {
	c := defaultClassifier()
	confirmations := []string{"thank you for applying", "application received", "we have received your application"}
	exclusions := []string{"assessment", "unfortunately", "interview scheduled", "offer letter"}

	for _, conf := range confirmations {
		for _, excl := range exclusions {
			for _, text := range []string{conf + " " + excl, excl + " " + conf} {
				assert.Equal(t, types.DecisionRejected, c.ClassifySubject(text), text)
				assert.Equal(t, types.DecisionRejected, c.ClassifyBody(text), text)

				f := &fetchRecorder{body: text}
				v, err := c.Classify(context.Background(), &types.Email{ID: "x", Subject: "update"}, f.fetch)
				require.NoError(t, err)
				assert.Equal(t, types.DecisionRejected, v.Decision, text)
			}
		}
	}
}

func TestClassifierCopiesKeywords(t *testing.T) {
	kw := Keywords{Confirmation: []string{"Application Received"}, Exclusion: []string{"Assessment"}}
	c := NewClassifier(kw)
	kw.Confirmation[0] = "nothing"
	kw.Exclusion[0] = "nothing"

	assert.Equal(t, types.DecisionConfirmed, c.ClassifySubject("application received"))
	assert.Equal(t, types.DecisionRejected, c.ClassifySubject("assessment"))
}

func TestJobAnalyzerAnalyze(t *testing.T) {
	ja := NewJobAnalyzer(defaultClassifier(), NewExtractor(nil, nil))

	app, v, err := ja.Analyze(context.Background(), &types.Email{
		ID:        "a1",
		MessageID: "<a1@mail>",
		From:      "Acme Corp Careers <no-reply@greenhouse.io>",
		Subject:   "Thank you for applying to Acme Corp — Backend Engineer (Job ID: 4821)",
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.True(t, v.Confirmed())
	assert.Equal(t, "<a1@mail>", app.MessageID)

	app, v, err = ja.Analyze(context.Background(), &types.Email{
		ID:      "b1",
		Subject: "Your assessment for the Backend Engineer role at Acme Corp",
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, app)
	assert.Equal(t, types.DecisionRejected, v.Decision)
}
