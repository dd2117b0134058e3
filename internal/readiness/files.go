package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ragchat/internal/gateway"
	"ragchat/internal/types"

	"go.uber.org/zap"
)

// Banner texts for the file path.
const (
	MsgAuthMissing    = "Authentication missing."
	MsgEmptySelection = "Please select at least one file."
	MsgUploadRejected = "Upload failed. Server rejected the files."
	MsgNetworkError   = "Network error. Please try again."
	MsgDeleteFailed   = "Delete failed. Please try again."
)

// =============================================================================
// SELECTION
// =============================================================================

// Select replaces the pending upload selection and clears the banner.
func (t *Tracker) Select(files ...types.FilePayload) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append([]types.FilePayload(nil), files...)
	t.pendingGen++
	t.status = nil
	t.notifyLocked()
}

// ClearSelection drops the pending selection.
func (t *Tracker) ClearSelection() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = nil
	t.pendingGen++
	t.notifyLocked()
}

// Pending returns a copy of the pending selection.
func (t *Tracker) Pending() []types.FilePayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.FilePayload(nil), t.pending...)
}

// Uploading reports whether any upload is in flight.
func (t *Tracker) Uploading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uploads > 0
}

// =============================================================================
// UPLOAD
// =============================================================================

// Upload sends the pending selection. On success the selection is cleared
// and a refresh is scheduled after the refresh delay. On failure the
// selection is kept for a retry and the banner carries the error.
func (t *Tracker) Upload(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.sendingSel {
		t.mu.Unlock()
		return ErrUploadInFlight
	}
	if err := t.checkUploadLocked(len(t.pending)); err != nil {
		t.mu.Unlock()
		return err
	}
	batch := append([]types.FilePayload(nil), t.pending...)
	gen := t.pendingGen
	t.sendingSel = true
	t.mu.Unlock()

	return t.send(ctx, batch, func() {
		t.sendingSel = false
	}, func() {
		if t.pendingGen == gen {
			t.pending = nil
		}
	})
}

// UploadBatch uploads files without touching the pending selection. It is
// used for uploads the user did not pick by hand, such as a watched folder.
// Banner, refresh and error handling match Upload.
func (t *Tracker) UploadBatch(ctx context.Context, files []types.FilePayload) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if err := t.checkUploadLocked(len(files)); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	return t.send(ctx, append([]types.FilePayload(nil), files...), nil, nil)
}

// checkUploadLocked sets the banner for uploads that cannot start.
func (t *Tracker) checkUploadLocked(n int) error {
	if t.token == "" {
		t.setStatusLocked(types.StatusError, MsgAuthMissing)
		t.notifyLocked()
		return gateway.ErrAuthMissing
	}
	if n == 0 {
		t.setStatusLocked(types.StatusError, MsgEmptySelection)
		t.notifyLocked()
		return gateway.ErrEmptySelection
	}
	return nil
}

// send runs one upload. done runs under mu once the call returns; onSuccess
// runs under mu only if it succeeded and the tracker is still open.
func (t *Tracker) send(ctx context.Context, batch []types.FilePayload, done, onSuccess func()) error {
	t.mu.Lock()
	t.uploads++
	t.status = nil
	t.notifyLocked()
	t.mu.Unlock()

	ctx, cancel := t.bind(ctx)
	defer cancel()
	t.logger.Info("uploading files", zap.Int("count", len(batch)))
	err := t.backend.UploadFiles(ctx, t.token, batch)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploads--
	if done != nil {
		done()
	}
	if t.closed {
		return ErrClosed
	}
	if err != nil {
		t.logger.Warn("upload failed", zap.Int("count", len(batch)), zap.Error(err))
		t.setStatusLocked(types.StatusError, uploadFailureMessage(err))
		t.notifyLocked()
		return err
	}

	if onSuccess != nil {
		onSuccess()
	}
	t.setStatusLocked(types.StatusSuccess, fmt.Sprintf("Successfully uploaded %d file(s)!", len(batch)))
	t.scheduleRefreshLocked()
	t.notifyLocked()
	return nil
}

func uploadFailureMessage(err error) string {
	switch {
	case gateway.IsNetworkError(err):
		return MsgNetworkError
	case errors.Is(err, gateway.ErrAuthMissing):
		return MsgAuthMissing
	default:
		return MsgUploadRejected
	}
}

// scheduleRefreshLocked starts a delayed listing bound to the tracker
// lifetime. Must be called with mu held and the tracker open.
func (t *Tracker) scheduleRefreshLocked() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		timer := time.NewTimer(t.refreshDelay)
		defer timer.Stop()
		select {
		case <-t.lifetimeCtx.Done():
			return
		case <-timer.C:
		}
		if err := t.Refresh(t.lifetimeCtx); err != nil && !errors.Is(err, ErrClosed) {
			t.logger.Warn("post-upload refresh failed", zap.Error(err))
		}
	}()
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes one document. On success only the record whose ID equals
// fileID is dropped from the local list; no refresh is issued. Listings
// already in flight will not bring the record back.
func (t *Tracker) Delete(ctx context.Context, fileID string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.token == "" {
		t.setStatusLocked(types.StatusError, MsgAuthMissing)
		t.notifyLocked()
		t.mu.Unlock()
		return gateway.ErrAuthMissing
	}
	name := fileID
	for _, f := range t.files {
		if f.ID == fileID {
			name = f.Filename
			break
		}
	}
	t.mu.Unlock()

	ctx, cancel := t.bind(ctx)
	defer cancel()
	err := t.backend.DeleteFile(ctx, t.token, fileID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if err != nil {
		t.logger.Warn("delete failed", zap.String("file_id", fileID), zap.Error(err))
		t.setStatusLocked(types.StatusError, MsgDeleteFailed)
		t.notifyLocked()
		return err
	}

	kept := t.files[:0:0]
	for _, f := range t.files {
		if f.ID != fileID {
			kept = append(kept, f)
		}
	}
	t.files = kept
	t.deletedAt[fileID] = t.listSeq
	t.setStatusLocked(types.StatusSuccess, fmt.Sprintf("Deleted %s.", name))
	t.logger.Info("file removed locally", zap.String("file_id", fileID), zap.Int("remaining", len(kept)))
	t.notifyLocked()
	return nil
}
