package hub_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MDx-Vision/nicehr-realtime/src/hub"
	"github.com/MDx-Vision/nicehr-realtime/src/types"
)

func TestRegistryAddAndRemove(t *testing.T) {
	reg := hub.NewRegistry(zerolog.Nop())

	c1, _ := newTestClient(t, reg, "c1", "user-a", types.RoleMember)
	c2, _ := newTestClient(t, reg, "c2", "user-a", types.RoleMember)

	assert.Equal(t, 2, reg.ClientCount())
	assert.Len(t, reg.User("user-a"), 2)

	reg.RemoveFromAll(c1)
	assert.Equal(t, 1, reg.ClientCount())
	assert.Len(t, reg.User("user-a"), 1)

	reg.RemoveFromAll(c2)
	assert.Empty(t, reg.User("user-a"))
	assert.Empty(t, reg.All())
}

func TestRegistryChannelIndex(t *testing.T) {
	reg := hub.NewRegistry(zerolog.Nop())

	c1, _ := newTestClient(t, reg, "c1", "user-a", types.RoleMember)
	c2, _ := newTestClient(t, reg, "c2", "user-b", types.RoleMember)

	reg.AddToChannel("general", c1)
	reg.AddToChannel("general", c2)
	require.Len(t, reg.Channel("general"), 2)

	assert.True(t, reg.RemoveFromChannel("general", c1))
	assert.False(t, reg.RemoveFromChannel("general", c1), "second removal is a no-op")
	assert.Len(t, reg.Channel("general"), 1)
}

func TestRegistryEmptyBucketCleanup(t *testing.T) {
	reg := hub.NewRegistry(zerolog.Nop())

	c1, _ := newTestClient(t, reg, "c1", "user-a", types.RoleMember)
	reg.AddToChannel("general", c1)
	require.Contains(t, reg.ChannelCounts(), "general")

	reg.RemoveFromChannel("general", c1)
	assert.NotContains(t, reg.ChannelCounts(), "general", "last member removal deletes the bucket")
}

func TestRegistryRejectsUnregisteredChannelAdd(t *testing.T) {
	reg := hub.NewRegistry(zerolog.Nop())

	conn := newMockConn()
	c := hub.NewClient("ghost", "user-x", types.RoleMember, conn, 16, zerolog.Nop())

	reg.AddToChannel("general", c)
	assert.Empty(t, reg.Channel("general"), "unregistered connections are never channel-indexed")
}

func TestRegistryRemoveFromAllReturnsChannels(t *testing.T) {
	reg := hub.NewRegistry(zerolog.Nop())

	c1, _ := newTestClient(t, reg, "c1", "user-a", types.RoleMember)
	reg.AddToChannel("general", c1)
	reg.AddToChannel("random", c1)

	channels := reg.RemoveFromAll(c1)
	assert.ElementsMatch(t, []string{"general", "random"}, channels)

	assert.Nil(t, reg.RemoveFromAll(c1), "second teardown returns nothing")
}

func TestRegistryConcurrentJoinLeave(t *testing.T) {
	reg := hub.NewRegistry(zerolog.Nop())

	const workers = 32
	clients := make([]*hub.Client, workers)
	for i := range clients {
		clients[i], _ = newTestClient(t, reg, fmt.Sprintf("c%d", i), fmt.Sprintf("user-%d", i), types.RoleMember)
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *hub.Client) {
			defer wg.Done()
			for range 100 {
				reg.AddToChannel("busy", c)
				reg.RemoveFromChannel("busy", c)
			}
			reg.AddToChannel("busy", c)
		}(c)
	}
	wg.Wait()

	assert.Len(t, reg.Channel("busy"), workers, "no entries lost under concurrent mutation")
}

func TestRegistrySubscribers(t *testing.T) {
	reg := hub.NewRegistry(zerolog.Nop())

	c1, _ := newTestClient(t, reg, "c1", "user-a", types.RoleMember)
	c2, _ := newTestClient(t, reg, "c2", "user-b", types.RoleMember)
	_, _ = newTestClient(t, reg, "c3", "user-c", types.RoleMember)

	c1.SetSubscribed(true)
	c2.SetSubscribed(true)

	assert.Len(t, reg.Subscribers(), 2)
	assert.Len(t, reg.SubscribersOf([]string{"user-a"}), 1)
	assert.Empty(t, reg.SubscribersOf([]string{"user-c"}), "unsubscribed connections are not returned")
}
