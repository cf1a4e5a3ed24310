package partner

import (
	"context"
	"errors"
	"testing"

	"github.com/onnwee/nearby/internal/venue"
)

var bistrot = venue.Parts{Name: "Le Bistrot", Address: "12 rue Nationale", City: "Lille", Zip: "59000"}

func TestParseRole(t *testing.T) {
	tests := map[string]Role{
		"partner":   RolePartner,
		" Partner ": RolePartner,
		"user":      RoleUser,
		"":          RoleUser,
		"admin":     RoleUser,
	}
	for in, want := range tests {
		if got := ParseRole(in); got != want {
			t.Errorf("ParseRole(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr error
	}{
		{"user without venue", Profile{ID: "u1", Role: RoleUser, DisplayName: "Ana"}, nil},
		{"partner with venue", Profile{ID: "p1", Role: RolePartner, DisplayName: "Bistrot", Venue: bistrot}, nil},
		{"partner missing zip", Profile{ID: "p1", Role: RolePartner, DisplayName: "Bistrot", Venue: venue.Parts{Name: "B", Address: "A", City: "C"}}, venue.ErrIncomplete},
		{"missing id", Profile{Role: RoleUser, DisplayName: "Ana"}, ErrMissingID},
		{"missing name", Profile{ID: "u1", Role: RoleUser, DisplayName: "  "}, ErrMissingName},
		{"unknown role", Profile{ID: "u1", Role: "admin", DisplayName: "Ana"}, ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestInMemoryRepository(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Get(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty repo error = %v, want ErrNotFound", err)
	}

	p := &Profile{ID: "p1", Role: RolePartner, DisplayName: " Le Bistrot ", Venue: bistrot}
	if err := repo.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	created := p.CreatedAt

	got, err := repo.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.IsPartner() || got.DisplayName != "Le Bistrot" || got.Venue != bistrot {
		t.Errorf("Get() = %+v", got)
	}

	update := &Profile{ID: "p1", Role: RolePartner, DisplayName: "Le Bistrot", Venue: bistrot}
	update.Venue.City = "Roubaix"
	if err := repo.Upsert(ctx, update); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	got, _ = repo.Get(ctx, "p1")
	if got.Venue.City != "Roubaix" {
		t.Errorf("city = %q, want Roubaix", got.Venue.City)
	}
	if !got.CreatedAt.Equal(created) {
		t.Error("CreatedAt changed on update")
	}

	// Mutating a returned profile must not change the stored one.
	got.DisplayName = "changed"
	again, _ := repo.Get(ctx, "p1")
	if again.DisplayName != "Le Bistrot" {
		t.Error("Get() returned shared state")
	}

	if err := repo.Upsert(ctx, &Profile{ID: "p2", Role: RolePartner, DisplayName: "x"}); !errors.Is(err, venue.ErrIncomplete) {
		t.Errorf("Upsert(incomplete partner) error = %v", err)
	}
}
