package review

import (
	"context"
	"strings"
	"testing"

	"github.com/remap-keys/remap-backend/internal/db/models"
	"github.com/remap-keys/remap-backend/internal/identity"
	"github.com/remap-keys/remap-backend/internal/notify"
)

type fakeDefinitionStore struct {
	definitions map[string]*models.KeyboardDefinition

	updatedID     string
	updatedStatus string
	updatedReason *string
}

func (f *fakeDefinitionStore) GetByID(_ context.Context, id string) (*models.KeyboardDefinition, error) {
	return f.definitions[id], nil
}

func (f *fakeDefinitionStore) ListByVendorProduct(_ context.Context, vendorID, productID int) ([]*models.KeyboardDefinition, error) {
	matches := []*models.KeyboardDefinition{}
	for _, d := range f.definitions {
		if d.VendorID == vendorID && d.ProductID == productID {
			matches = append(matches, d)
		}
	}
	return matches, nil
}

func (f *fakeDefinitionStore) UpdateStatus(_ context.Context, id, status string, rejectReason *string) error {
	f.updatedID = id
	f.updatedStatus = status
	f.updatedReason = rejectReason
	if d, ok := f.definitions[id]; ok {
		d.Status = status
		d.RejectReason = rejectReason
	}
	return nil
}

type fakeNotifier struct {
	messages      []string
	statusChanges []notify.ReviewStatusData
}

func (f *fakeNotifier) Message(_ context.Context, definitionID, message string) error {
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeNotifier) ReviewStatusChange(_ context.Context, definitionID string, data notify.ReviewStatusData) error {
	f.statusChanges = append(f.statusChanges, data)
	return nil
}

type fakeProvider map[string]*identity.User

func (f fakeProvider) GetUser(_ context.Context, uid string) (*identity.User, error) {
	return f[uid], nil
}

func (f fakeProvider) GetUserByEmail(_ context.Context, email string) (*identity.User, error) {
	return nil, nil
}

func definition(id, name, productName, status string, vendorID, productID int) *models.KeyboardDefinition {
	return &models.KeyboardDefinition{
		ID:          id,
		AuthorType:  models.AuthorTypeIndividual,
		AuthorUID:   "author-" + id,
		Name:        name,
		VendorID:    vendorID,
		ProductID:   productID,
		ProductName: productName,
		Status:      status,
	}
}

func newTestWorkflow(store *fakeDefinitionStore, notifier *fakeNotifier, idp fakeProvider) *Workflow {
	return NewWorkflow(store, idp, notifier, NewMemoryLocker())
}

func TestRun_UniqueSingleDefinition(t *testing.T) {
	store := &fakeDefinitionStore{definitions: map[string]*models.KeyboardDefinition{
		"d1": definition("d1", "Kbd", "Kbd Pro", models.DefinitionStatusInReview, 1, 2),
	}}
	notifier := &fakeNotifier{}
	w := newTestWorkflow(store, notifier, fakeProvider{})

	w.Run(context.Background(), "d1")

	if store.updatedID != "" {
		t.Errorf("unique definition must not be touched, updated %q", store.updatedID)
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "is unique") {
		t.Errorf("messages = %v", notifier.messages)
	}
}

func TestRun_RejectsApprovedDuplicate(t *testing.T) {
	store := &fakeDefinitionStore{definitions: map[string]*models.KeyboardDefinition{
		"d1": definition("d1", "Kbd", "Kbd Pro", models.DefinitionStatusInReview, 1, 2),
		"d2": definition("d2", "Kbd Old", "Kbd Pro", models.DefinitionStatusApproved, 1, 2),
	}}
	notifier := &fakeNotifier{}
	idp := fakeProvider{
		"author-d1": {UID: "author-d1", Email: "author@example.com", DisplayName: "Author"},
	}
	w := newTestWorkflow(store, notifier, idp)

	w.Run(context.Background(), "d1")

	if store.updatedID != "d1" || store.updatedStatus != models.DefinitionStatusRejected {
		t.Fatalf("update = (%q, %q)", store.updatedID, store.updatedStatus)
	}
	if store.updatedReason == nil || *store.updatedReason != RejectReasonDuplicate {
		t.Errorf("reason = %v", store.updatedReason)
	}
	if len(notifier.statusChanges) != 1 {
		t.Fatalf("statusChanges = %v", notifier.statusChanges)
	}
	change := notifier.statusChanges[0]
	if change.Status != models.DefinitionStatusRejected || change.Email != "author@example.com" {
		t.Errorf("change = %+v", change)
	}
}

func TestRun_SameProductNameButNotApproved(t *testing.T) {
	store := &fakeDefinitionStore{definitions: map[string]*models.KeyboardDefinition{
		"d1": definition("d1", "Kbd", "Kbd Pro", models.DefinitionStatusInReview, 1, 2),
		"d2": definition("d2", "Kbd Old", "Kbd Pro", models.DefinitionStatusDraft, 1, 2),
	}}
	notifier := &fakeNotifier{}
	w := newTestWorkflow(store, notifier, fakeProvider{})

	w.Run(context.Background(), "d1")

	if store.updatedID != "" {
		t.Error("a non-approved duplicate must not trigger rejection")
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "is unique") {
		t.Errorf("messages = %v", notifier.messages)
	}
}

func TestRun_DifferentProductNameIsUnique(t *testing.T) {
	store := &fakeDefinitionStore{definitions: map[string]*models.KeyboardDefinition{
		"d1": definition("d1", "Kbd", "Kbd Pro", models.DefinitionStatusInReview, 1, 2),
		"d2": definition("d2", "Kbd Lite", "Kbd Lite", models.DefinitionStatusApproved, 1, 2),
	}}
	notifier := &fakeNotifier{}
	w := newTestWorkflow(store, notifier, fakeProvider{})

	w.Run(context.Background(), "d1")

	if store.updatedID != "" {
		t.Error("different product name must not trigger rejection")
	}
}

func TestRun_MissingDefinitionAborts(t *testing.T) {
	store := &fakeDefinitionStore{definitions: map[string]*models.KeyboardDefinition{}}
	notifier := &fakeNotifier{}
	w := newTestWorkflow(store, notifier, fakeProvider{})

	w.Run(context.Background(), "gone")

	if len(notifier.messages) != 0 || len(notifier.statusChanges) != 0 {
		t.Error("missing definition must not notify")
	}
}

func TestRun_LockContentionSkips(t *testing.T) {
	store := &fakeDefinitionStore{definitions: map[string]*models.KeyboardDefinition{
		"d1": definition("d1", "Kbd", "Kbd Pro", models.DefinitionStatusInReview, 1, 2),
	}}
	notifier := &fakeNotifier{}
	locker := NewMemoryLocker()
	w := NewWorkflow(store, fakeProvider{}, notifier, locker)

	if acquired, _ := locker.TryAcquire(context.Background(), "d1"); !acquired {
		t.Fatal("pre-acquire failed")
	}
	w.Run(context.Background(), "d1")

	if len(notifier.messages) != 0 {
		t.Error("contended run must skip without notifying")
	}
}

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	acquired, err := l.TryAcquire(ctx, "d1")
	if err != nil || !acquired {
		t.Fatalf("first acquire = (%v, %v)", acquired, err)
	}
	acquired, _ = l.TryAcquire(ctx, "d1")
	if acquired {
		t.Error("second acquire must fail while held")
	}
	acquired, _ = l.TryAcquire(ctx, "d2")
	if !acquired {
		t.Error("lock must be per-definition")
	}

	l.Release(ctx, "d1")
	acquired, _ = l.TryAcquire(ctx, "d1")
	if !acquired {
		t.Error("acquire after release must succeed")
	}
}
