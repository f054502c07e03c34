package temporal

import (
	"errors"
	"testing"
	"time"

	"github.com/brojonat/solwallet/service/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

const testSignature = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

func TestTrackFinalityWorkflow(t *testing.T) {
	tests := []struct {
		name          string
		input         TrackFinalityInput
		setup         func(env *testsuite.TestWorkflowEnvironment, activities *Activities)
		expectedError bool
		validate      func(t *testing.T, result *TrackFinalityResult)
	}{
		{
			name:  "confirmed then finalized",
			input: TrackFinalityInput{Signature: testSignature, Kind: "transfer", PollInterval: time.Second, MaxPolls: 5},
			setup: func(env *testsuite.TestWorkflowEnvironment, activities *Activities) {
				env.OnActivity(activities.CheckSignatureStatus, mock.Anything, mock.Anything).
					Return(&solana.SignatureStatus{Found: true, Slot: 10, Status: solana.StatusConfirmed}, nil).Once()
				env.OnActivity(activities.CheckSignatureStatus, mock.Anything, mock.Anything).
					Return(&solana.SignatureStatus{Found: true, Slot: 10, Status: solana.StatusFinalized}, nil).Once()
				env.OnActivity(activities.RecordOperationFinality, mock.Anything, mock.MatchedBy(func(in RecordOperationFinalityInput) bool {
					return in.Finality == FinalityFinalized && in.Signature == testSignature
				})).Return(nil).Once()
				env.OnActivity(activities.PublishFinalityEvent, mock.Anything, mock.Anything).Return(nil).Once()
			},
			validate: func(t *testing.T, result *TrackFinalityResult) {
				assert.Equal(t, FinalityFinalized, result.Finality)
				assert.Equal(t, 2, result.Polls)
				assert.Equal(t, uint64(10), result.Slot)
			},
		},
		{
			name:  "execution error on chain",
			input: TrackFinalityInput{Signature: testSignature, Kind: "swap", MaxPolls: 5},
			setup: func(env *testsuite.TestWorkflowEnvironment, activities *Activities) {
				env.OnActivity(activities.CheckSignatureStatus, mock.Anything, mock.Anything).
					Return(&solana.SignatureStatus{Found: true, Status: solana.StatusConfirmed, Err: "InstructionError"}, nil).Once()
				env.OnActivity(activities.RecordOperationFinality, mock.Anything, mock.MatchedBy(func(in RecordOperationFinalityInput) bool {
					return in.Finality == FinalityFailed
				})).Return(nil).Once()
				env.OnActivity(activities.PublishFinalityEvent, mock.Anything, mock.MatchedBy(func(in PublishFinalityEventInput) bool {
					return in.Error == "InstructionError" && in.Kind == "swap"
				})).Return(nil).Once()
			},
			validate: func(t *testing.T, result *TrackFinalityResult) {
				assert.Equal(t, FinalityFailed, result.Finality)
				assert.Equal(t, 1, result.Polls)
				assert.Equal(t, "InstructionError", result.Error)
			},
		},
		{
			name:  "gives up after poll budget",
			input: TrackFinalityInput{Signature: testSignature, PollInterval: time.Second, MaxPolls: 3},
			setup: func(env *testsuite.TestWorkflowEnvironment, activities *Activities) {
				env.OnActivity(activities.CheckSignatureStatus, mock.Anything, mock.Anything).
					Return(&solana.SignatureStatus{Found: false}, nil).Times(3)
				env.OnActivity(activities.RecordOperationFinality, mock.Anything, mock.Anything).Return(nil).Once()
				env.OnActivity(activities.PublishFinalityEvent, mock.Anything, mock.Anything).Return(nil).Once()
			},
			validate: func(t *testing.T, result *TrackFinalityResult) {
				assert.Equal(t, FinalityUnknown, result.Finality)
				assert.Equal(t, 3, result.Polls)
			},
		},
		{
			name:  "publish failure does not fail the workflow",
			input: TrackFinalityInput{Signature: testSignature, MaxPolls: 1},
			setup: func(env *testsuite.TestWorkflowEnvironment, activities *Activities) {
				env.OnActivity(activities.CheckSignatureStatus, mock.Anything, mock.Anything).
					Return(&solana.SignatureStatus{Found: true, Status: solana.StatusFinalized}, nil)
				env.OnActivity(activities.RecordOperationFinality, mock.Anything, mock.Anything).Return(nil)
				env.OnActivity(activities.PublishFinalityEvent, mock.Anything, mock.Anything).Return(errors.New("nats down"))
			},
			validate: func(t *testing.T, result *TrackFinalityResult) {
				assert.Equal(t, FinalityFinalized, result.Finality)
			},
		},
		{
			name:  "record failure fails the workflow",
			input: TrackFinalityInput{Signature: testSignature, MaxPolls: 1},
			setup: func(env *testsuite.TestWorkflowEnvironment, activities *Activities) {
				env.OnActivity(activities.CheckSignatureStatus, mock.Anything, mock.Anything).
					Return(&solana.SignatureStatus{Found: true, Status: solana.StatusFinalized}, nil)
				env.OnActivity(activities.RecordOperationFinality, mock.Anything, mock.Anything).Return(errors.New("database error"))
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestWorkflowEnvironment()

			activities := &Activities{}
			env.RegisterActivity(activities.CheckSignatureStatus)
			env.RegisterActivity(activities.RecordOperationFinality)
			env.RegisterActivity(activities.PublishFinalityEvent)

			tt.setup(env, activities)

			env.ExecuteWorkflow(TrackFinalityWorkflow, tt.input)
			require.True(t, env.IsWorkflowCompleted())

			if tt.expectedError {
				assert.Error(t, env.GetWorkflowError())
				return
			}

			require.NoError(t, env.GetWorkflowError())
			var result TrackFinalityResult
			require.NoError(t, env.GetWorkflowResult(&result))
			tt.validate(t, &result)
			env.AssertExpectations(t)
		})
	}
}
