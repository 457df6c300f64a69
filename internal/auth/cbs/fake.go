package cbs

import (
	"context"
	"sync"
)

// FakeClient is a synchronous, in-memory Client for state-machine tests. It
// never completes a request on its own; the test drives completion by
// calling CompletePut / CompleteDelete.
type FakeClient struct {
	mu sync.Mutex

	PutAudience    string
	PutTokenString string
	putComplete    CompletionFunc

	DeleteAudience string
	deleteComplete CompletionFunc

	// SubmitErr, when set, is returned by the next PutToken/DeleteToken
	// call instead of submitting.
	SubmitErr error
}

// NewFakeClient creates an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// PutToken implements Client.
func (f *FakeClient) PutToken(ctx context.Context, audience, token string, onComplete CompletionFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SubmitErr != nil {
		err := f.SubmitErr
		f.SubmitErr = nil
		return err
	}

	f.PutAudience = audience
	f.PutTokenString = token
	f.putComplete = onComplete
	return nil
}

// DeleteToken implements Client.
func (f *FakeClient) DeleteToken(ctx context.Context, audience string, onComplete CompletionFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SubmitErr != nil {
		err := f.SubmitErr
		f.SubmitErr = nil
		return err
	}

	f.DeleteAudience = audience
	f.deleteComplete = onComplete
	return nil
}

// CompletePut invokes the pending PutToken completion, if any.
func (f *FakeClient) CompletePut(result Result, statusCode uint32, statusDescription string) {
	f.mu.Lock()
	cb := f.putComplete
	f.putComplete = nil
	f.mu.Unlock()

	if cb != nil {
		cb(result, statusCode, statusDescription)
	}
}

// CompleteDelete invokes the pending DeleteToken completion, if any.
func (f *FakeClient) CompleteDelete(result Result, statusCode uint32, statusDescription string) {
	f.mu.Lock()
	cb := f.deleteComplete
	f.deleteComplete = nil
	f.mu.Unlock()

	if cb != nil {
		cb(result, statusCode, statusDescription)
	}
}
