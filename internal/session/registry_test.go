package session

import (
	"sync"
	"testing"
)

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry()

	st, created := r.GetOrCreate("clinic-a")
	if !created {
		t.Error("first GetOrCreate created = false, want true")
	}
	if st == nil {
		t.Fatal("GetOrCreate returned nil state")
	}
	if st.TenantID() != "clinic-a" {
		t.Errorf("TenantID() = %q, want %q", st.TenantID(), "clinic-a")
	}

	again, created := r.GetOrCreate("clinic-a")
	if created {
		t.Error("second GetOrCreate created = true, want false")
	}
	if again != st {
		t.Error("second GetOrCreate returned a different state")
	}
}

func TestRegistryGetOrCreateConcurrent(t *testing.T) {
	r := NewRegistry()

	const goroutines = 16
	results := make([]*State, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d observed a different state instance", i)
		}
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("clinic-a")
	r.Remove("clinic-a")

	if _, ok := r.Get("clinic-a"); ok {
		t.Error("Get after Remove ok = true, want false")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}

	// Removing an unknown tenant is a no-op.
	r.Remove("never-existed")
}

func TestRegistryListOrdered(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		r.GetOrCreate(id)
	}

	states := r.List()
	if len(states) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(states))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, st := range states {
		if st.TenantID() != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, st.TenantID(), want[i])
		}
	}
}
