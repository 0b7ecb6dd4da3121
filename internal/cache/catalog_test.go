package cache

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kartoteka/internal/model"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) ListActiveServices(ctx context.Context, tenantID int64) ([]model.Service, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Service), args.Error(1)
}

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func catalog() []model.Service {
	parent := int64(1)
	return []model.Service{
		{ID: 1, TenantID: 7, Name: "Colouring", IsActive: true, Price: decimal.RequireFromString("40.5")},
		{ID: 2, TenantID: 7, Name: "Roots", DurationMinutes: 45, ParentID: &parent, IsActive: true,
			Options: []model.OptionField{{Key: "k", Label: "K", Options: []model.Option{{Key: "a", DurationMinutes: 15}}}}},
	}
}

func TestCatalog_ReadThrough(t *testing.T) {
	mr, rdb := setup(t)
	src := new(mockSource)
	src.On("ListActiveServices", mock.Anything, int64(7)).Return(catalog(), nil).Once()

	logger := zerolog.New(io.Discard)
	c := NewCatalog(src, rdb, time.Minute, &logger)
	ctx := context.Background()

	first, err := c.ListActiveServices(ctx, 7)
	require.NoError(t, err)
	assert.True(t, mr.Exists("kartoteka:catalog:7"))

	second, err := c.ListActiveServices(ctx, 7)
	require.NoError(t, err)
	src.AssertExpectations(t)

	require.Len(t, second, 2)
	assert.Equal(t, first[1].Name, second[1].Name)
	assert.True(t, decimal.RequireFromString("40.5").Equal(second[0].Price))
	require.NotNil(t, second[1].ParentID)
	opt, ok := second[1].ResolveOption("k::a")
	assert.True(t, ok)
	assert.Equal(t, 15, opt.DurationMinutes)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("kartoteka:catalog:7"))
}

func TestCatalog_Invalidate(t *testing.T) {
	mr, rdb := setup(t)
	src := new(mockSource)
	src.On("ListActiveServices", mock.Anything, int64(7)).Return(catalog(), nil).Twice()

	logger := zerolog.New(io.Discard)
	c := NewCatalog(src, rdb, time.Minute, &logger)
	ctx := context.Background()

	_, err := c.ListActiveServices(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, 7, 8))
	assert.False(t, mr.Exists("kartoteka:catalog:7"))

	_, err = c.ListActiveServices(ctx, 7)
	require.NoError(t, err)
	src.AssertExpectations(t)
}

func TestCatalog_RedisDownFallsBack(t *testing.T) {
	mr, rdb := setup(t)
	mr.Close()

	src := new(mockSource)
	src.On("ListActiveServices", mock.Anything, int64(7)).Return(catalog(), nil)

	logger := zerolog.New(io.Discard)
	c := NewCatalog(src, rdb, time.Minute, &logger)
	services, err := c.ListActiveServices(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, services, 2)
}

func TestCatalog_SourceError(t *testing.T) {
	_, rdb := setup(t)
	src := new(mockSource)
	src.On("ListActiveServices", mock.Anything, int64(7)).Return(nil, errors.New("db down"))

	logger := zerolog.New(io.Discard)
	c := NewCatalog(src, rdb, time.Minute, &logger)
	_, err := c.ListActiveServices(context.Background(), 7)
	assert.Error(t, err)
}

func TestCatalog_WithoutRedis(t *testing.T) {
	src := new(mockSource)
	src.On("ListActiveServices", mock.Anything, int64(7)).Return(catalog(), nil).Twice()

	logger := zerolog.New(io.Discard)
	c := NewCatalog(src, nil, time.Minute, &logger)
	_, _ = c.ListActiveServices(context.Background(), 7)
	_, _ = c.ListActiveServices(context.Background(), 7)
	assert.NoError(t, c.Invalidate(context.Background(), 7))
	src.AssertExpectations(t)
}
