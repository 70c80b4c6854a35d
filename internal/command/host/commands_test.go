package host

import (
	"context"
	"testing"

	"github.com/remap-keys/remap-backend/internal/db/models"
	"github.com/remap-keys/remap-backend/internal/identity"
	"github.com/remap-keys/remap-backend/internal/rpc"
)

type fakeOrganizationStore struct {
	orgs map[string]*models.Organization

	added   []string
	removed []string
}

func (f *fakeOrganizationStore) GetByID(_ context.Context, id string) (*models.Organization, error) {
	return f.orgs[id], nil
}

func (f *fakeOrganizationStore) AddMember(_ context.Context, orgID, uid string) error {
	f.added = append(f.added, orgID+"/"+uid)
	org := f.orgs[orgID]
	for _, existing := range org.Members {
		if existing == uid {
			return nil
		}
	}
	org.Members = append(org.Members, uid)
	return nil
}

func (f *fakeOrganizationStore) RemoveMember(_ context.Context, orgID, uid string) error {
	f.removed = append(f.removed, orgID+"/"+uid)
	org := f.orgs[orgID]
	kept := org.Members[:0]
	for _, existing := range org.Members {
		if existing != uid {
			kept = append(kept, existing)
		}
	}
	org.Members = kept
	return nil
}

// IsMember implements the membership guard against the same fixture data.
func (f *fakeOrganizationStore) IsMember(_ context.Context, orgID, uid string) (bool, error) {
	org, ok := f.orgs[orgID]
	if !ok {
		return false, nil
	}
	for _, existing := range org.Members {
		if existing == uid {
			return true, nil
		}
	}
	return false, nil
}

type fakeProvider map[string]*identity.User

func (f fakeProvider) GetUser(_ context.Context, uid string) (*identity.User, error) {
	return f[uid], nil
}

func (f fakeProvider) GetUserByEmail(_ context.Context, email string) (*identity.User, error) {
	for _, u := range f {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func newFixture(t *testing.T) (*rpc.Dispatcher, *fakeOrganizationStore) {
	t.Helper()

	orgs := &fakeOrganizationStore{orgs: map[string]*models.Organization{
		"org-1": {ID: "org-1", Name: "Acme", Members: []string{"member-1"}},
	}}
	idp := fakeProvider{
		"member-1": {
			UID: "member-1", Email: "member@example.com", DisplayName: "Member",
			ProviderIdentities: []identity.ProviderIdentity{{ProviderID: identity.GitHubProviderID}},
		},
		"candidate": {
			UID: "candidate", Email: "candidate@example.com", DisplayName: "Candidate",
			ProviderIdentities: []identity.ProviderIdentity{{ProviderID: identity.GitHubProviderID}},
		},
		"no-github": {UID: "no-github", Email: "password@example.com", DisplayName: "Password User"},
	}

	d := rpc.NewDispatcher()
	NewCommands(orgs, idp).Register(d, orgs)
	return d, orgs
}

func member() *rpc.Caller { return &rpc.Caller{UID: "member-1"} }

func TestFetchOrganizationMembers(t *testing.T) {
	d, _ := newFixture(t)

	result, err := d.Invoke(context.Background(), "fetchOrganizationMembers", member(), rpc.Data{"organizationId": "org-1"})
	if err != nil || !result.Success {
		t.Fatalf("result = %+v, err = %v", result, err)
	}
	members := result.Extra["members"].([]map[string]any)
	if len(members) != 1 {
		t.Fatalf("members = %v", members)
	}
	if members[0]["uid"] != "member-1" || members[0]["me"] != true || members[0]["email"] != "member@example.com" {
		t.Errorf("member = %v", members[0])
	}
}

func TestFetchOrganizationMembers_NonMemberRejected(t *testing.T) {
	d, _ := newFixture(t)

	result, err := d.Invoke(context.Background(), "fetchOrganizationMembers", &rpc.Caller{UID: "stranger"},
		rpc.Data{"organizationId": "org-1"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.ErrorCode != rpc.CodeNotOrganizationMember {
		t.Errorf("result = %+v", result)
	}
}

func TestFetchOrganizationMembers_MissingOrganizationID(t *testing.T) {
	d, _ := newFixture(t)

	result, err := d.Invoke(context.Background(), "fetchOrganizationMembers", member(), rpc.Data{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	// RequireFields runs before the membership guard for this command.
	if result.ErrorCode != rpc.CodeValidation {
		t.Errorf("result = %+v", result)
	}
}

func TestAddOrganizationMember(t *testing.T) {
	d, orgs := newFixture(t)

	result, err := d.Invoke(context.Background(), "addOrganizationMember", member(),
		rpc.Data{"organizationId": "org-1", "email": "candidate@example.com"})
	if err != nil || !result.Success {
		t.Fatalf("result = %+v, err = %v", result, err)
	}
	if len(orgs.added) != 1 || orgs.added[0] != "org-1/candidate" {
		t.Errorf("added = %v", orgs.added)
	}

	// Adding again is idempotent: still success, member set unchanged.
	result, err = d.Invoke(context.Background(), "addOrganizationMember", member(),
		rpc.Data{"organizationId": "org-1", "email": "candidate@example.com"})
	if err != nil || !result.Success {
		t.Fatalf("repeat add: result = %+v, err = %v", result, err)
	}
	if got := len(orgs.orgs["org-1"].Members); got != 2 {
		t.Errorf("member count = %d, want 2", got)
	}
}

func TestAddOrganizationMember_NoGitHubIdentity(t *testing.T) {
	d, orgs := newFixture(t)

	result, _ := d.Invoke(context.Background(), "addOrganizationMember", member(),
		rpc.Data{"organizationId": "org-1", "email": "password@example.com"})
	if result.Success || result.ErrorCode != rpc.CodeAddingOrganizationMemberFailed {
		t.Errorf("result = %+v", result)
	}
	if len(orgs.added) != 0 {
		t.Error("non-GitHub user must not be added")
	}
}

func TestAddOrganizationMember_UnknownEmail(t *testing.T) {
	d, _ := newFixture(t)

	result, _ := d.Invoke(context.Background(), "addOrganizationMember", member(),
		rpc.Data{"organizationId": "org-1", "email": "nobody@example.com"})
	if result.Success || result.ErrorCode != rpc.CodeAddingOrganizationMemberFailed {
		t.Errorf("result = %+v", result)
	}
}

func TestDeleteOrganizationMember(t *testing.T) {
	d, orgs := newFixture(t)
	orgs.orgs["org-1"].Members = []string{"member-1", "candidate"}

	result, err := d.Invoke(context.Background(), "deleteOrganizationMember", member(),
		rpc.Data{"organizationId": "org-1", "uid": "candidate"})
	if err != nil || !result.Success {
		t.Fatalf("result = %+v, err = %v", result, err)
	}
	if len(orgs.orgs["org-1"].Members) != 1 {
		t.Errorf("members = %v", orgs.orgs["org-1"].Members)
	}

	// Deleting an absent member is idempotent.
	result, err = d.Invoke(context.Background(), "deleteOrganizationMember", member(),
		rpc.Data{"organizationId": "org-1", "uid": "candidate"})
	if err != nil || !result.Success {
		t.Fatalf("repeat delete: result = %+v, err = %v", result, err)
	}
}
