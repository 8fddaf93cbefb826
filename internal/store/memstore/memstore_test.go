package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/tbourn/go-support-relay/internal/domain"
	"github.com/tbourn/go-support-relay/internal/store"
	"github.com/tbourn/go-support-relay/internal/store/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

// Returned records are copies; mutating them must not leak into the store.
func TestCopyOnReturn(t *testing.T) {
	s := New()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, &domain.User{TelegramID: 1, FirstName: "Alice"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u.FirstName = "Mallory"

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.FirstName != "Alice" {
		t.Fatalf("stored record mutated through returned pointer: %q", got.FirstName)
	}
}

func TestConcurrentCreates(t *testing.T) {
	s := New()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateUser(ctx, &domain.User{
				TelegramID: int64(1000 + i),
				FirstName:  fmt.Sprintf("u%d", i),
			})
			if err != nil {
				t.Errorf("CreateUser %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	users, err := s.ListUsers(ctx, n)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != n {
		t.Fatalf("got %d users, want %d", len(users), n)
	}
	ids := make(map[int64]bool, n)
	for _, u := range users {
		if ids[u.ID] {
			t.Fatalf("duplicate id %d assigned", u.ID)
		}
		ids[u.ID] = true
	}
}
