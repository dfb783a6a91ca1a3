package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mipt-portal/userservice/internal/apperror"
	"github.com/mipt-portal/userservice/internal/model"
	"github.com/mipt-portal/userservice/internal/repository"
)

func newUser(email string) *model.User {
	return &model.User{
		Email:        email,
		HashPassword: "$2a$04$hash",
		Salt:         "abcdef1234",
		Name:         "Ivan",
		Address:      model.NewAddress("Dolgoprudny, Institutsky 9"),
		Course:       2,
		AdList:       []int64{},
	}
}

func TestSave_AssignsSequentialIDs(t *testing.T) {
	s := NewUserStore()
	ctx := context.Background()

	first, err := s.Save(ctx, newUser("a1@phystech.edu"))
	require.NoError(t, err)
	second, err := s.Save(ctx, newUser("a2@phystech.edu"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
}

func TestSave_DoesNotMutateInput(t *testing.T) {
	s := NewUserStore()
	in := newUser("a1@phystech.edu")

	_, err := s.Save(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(0), in.ID)
}

func TestSave_OverwritesExisting(t *testing.T) {
	s := NewUserStore()
	ctx := context.Background()

	saved, err := s.Save(ctx, newUser("a1@phystech.edu"))
	require.NoError(t, err)

	saved.Name = "Petr"
	_, err = s.Save(ctx, saved)
	require.NoError(t, err)

	got, err := s.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Petr", got.Name)
}

func TestSave_UnknownID(t *testing.T) {
	s := NewUserStore()
	u := newUser("a1@phystech.edu")
	u.ID = 99

	_, err := s.Save(context.Background(), u)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestFindByID_ReturnsCopy(t *testing.T) {
	s := NewUserStore()
	ctx := context.Background()

	saved, err := s.Save(ctx, newUser("a1@phystech.edu"))
	require.NoError(t, err)

	got, err := s.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	got.AdList = append(got.AdList, 7)
	got.Address.City = "Moscow"

	again, err := s.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Empty(t, again.AdList)
	assert.Empty(t, again.Address.City)
}

func TestFindByID_NotFound(t *testing.T) {
	s := NewUserStore()

	_, err := s.FindByID(context.Background(), 1)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestFindByEmail(t *testing.T) {
	s := NewUserStore()
	ctx := context.Background()

	_, err := s.Save(ctx, newUser("a1@phystech.edu"))
	require.NoError(t, err)

	got, err := s.FindByEmail(ctx, "a1@phystech.edu")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)

	// exact comparison: no case folding at this layer
	_, err = s.FindByEmail(ctx, "A1@phystech.edu")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	ok, err := s.ExistsByEmail(ctx, "a1@phystech.edu")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ExistsByEmail(ctx, "nobody@phystech.edu")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete_IDsNotReissued(t *testing.T) {
	s := NewUserStore()
	ctx := context.Background()

	first, err := s.Save(ctx, newUser("a1@phystech.edu"))
	require.NoError(t, err)

	removed, err := s.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	next, err := s.Save(ctx, newUser("a2@phystech.edu"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.ID)
}

func TestUpdate(t *testing.T) {
	s := NewUserStore()
	ctx := context.Background()

	saved, err := s.Save(ctx, newUser("a1@phystech.edu"))
	require.NoError(t, err)

	saved.Coins = 50
	ok, err := s.Update(ctx, saved)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Coins)

	ok, err = s.Update(ctx, newUser("unsaved@phystech.edu"))
	require.NoError(t, err)
	assert.False(t, ok, "zero id")

	ghost := newUser("ghost@phystech.edu")
	ghost.ID = 42
	ok, err = s.Update(ctx, ghost)
	require.NoError(t, err)
	assert.False(t, ok, "unknown id")
}

func TestFindAll(t *testing.T) {
	s := NewUserStore()
	ctx := context.Background()

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)

	for _, e := range []string{"a1@phystech.edu", "a2@phystech.edu", "a3@phystech.edu"} {
		_, err := s.Save(ctx, newUser(e))
		require.NoError(t, err)
	}

	all, err = s.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestExistsByID(t *testing.T) {
	s := NewUserStore()
	ctx := context.Background()

	saved, err := s.Save(ctx, newUser("a1@phystech.edu"))
	require.NoError(t, err)

	ok, err := repository.ExistsByID(ctx, s, saved.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repository.ExistsByID(ctx, s, 1000)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentSaves(t *testing.T) {
	s := NewUserStore()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := s.Save(ctx, newUser("same@phystech.edu"))
			if err == nil {
				ids <- u.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}
