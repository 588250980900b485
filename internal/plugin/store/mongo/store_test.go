package mongo_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	"github.com/BusyMan009/my-thrift-backend/internal/model"
	"github.com/BusyMan009/my-thrift-backend/internal/plugin/store/mongo"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/BusyMan009/my-thrift-backend/internal/testutil/testmongo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrystore.MarketStore, context.Context) {
	t.Helper()

	dbURL := testmongo.StartMongo(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	cfg.DBName = testmongo.UniqueDBName("mythrift_test")
	ctx := config.WithContext(context.Background(), &cfg)

	// Ensure mongo store plugin is registered
	_ = mongo.ForceImport

	err := registrystore.MigrateAll(ctx)
	require.NoError(t, err)

	plugin, err := registrystore.Select("mongo")
	require.NoError(t, err)

	store, err := plugin.Loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return store, ctx
}

var userSeq int

func mustUser(t *testing.T, store registrystore.MarketStore, ctx context.Context, name string) *model.User {
	t.Helper()
	userSeq++
	email := fmt.Sprintf("%s%d@example.com", name, userSeq)
	user, err := store.CreateUser(ctx, name, email, "$2a$10$hash", "https://cdn.example.com/avatar.png")
	require.NoError(t, err)
	return user
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	store, ctx := setupTestStore(t)

	_, err := store.CreateUser(ctx, "Alice", "alice@example.com", "hash", "")
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, "Other Alice", "alice@example.com", "hash2", "")
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestGetUserByEmail(t *testing.T) {
	store, ctx := setupTestStore(t)

	created, err := store.CreateUser(ctx, "Bob", "bob@example.com", "hash", "")
	require.NoError(t, err)

	got, err := store.GetUserByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = store.GetUserByEmail(ctx, "missing@example.com")
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestFavorites(t *testing.T) {
	store, ctx := setupTestStore(t)

	user := mustUser(t, store, ctx, "fav")
	seller := mustUser(t, store, ctx, "seller")
	product, err := store.CreateProduct(ctx, model.Product{
		Name: "Old Lamp", Price: 25, Condition: model.ConditionVintage, Category: "Home", UserID: seller.ID,
	})
	require.NoError(t, err)

	require.NoError(t, store.AddFavorite(ctx, user.ID, product.ID))
	// Adding twice keeps a single entry.
	require.NoError(t, store.AddFavorite(ctx, user.ID, product.ID))

	favorites, err := store.ListFavorites(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	assert.Equal(t, product.ID, favorites[0].ID)

	require.NoError(t, store.RemoveFavorite(ctx, user.ID, product.ID))
	favorites, err = store.ListFavorites(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, favorites)

	var notFound *registrystore.NotFoundError
	err = store.AddFavorite(ctx, user.ID, uuid.New())
	require.ErrorAs(t, err, &notFound)
}

func TestPasswordResetFlow(t *testing.T) {
	store, ctx := setupTestStore(t)

	user, err := store.CreateUser(ctx, "Carol", "carol@example.com", "oldhash", "")
	require.NoError(t, err)

	_, err = store.SetResetToken(ctx, "carol@example.com", "tok123", time.Now().Add(time.Hour))
	require.NoError(t, err)

	found, err := store.FindUserByResetToken(ctx, "tok123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	require.NoError(t, store.UpdatePassword(ctx, user.ID, "newhash"))

	// Token is single-use.
	_, err = store.FindUserByResetToken(ctx, "tok123")
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)

	got, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "newhash", got.PasswordHash)
}

func TestExpiredResetTokenRejected(t *testing.T) {
	store, ctx := setupTestStore(t)

	_, err := store.CreateUser(ctx, "Dan", "dan@example.com", "hash", "")
	require.NoError(t, err)

	_, err = store.SetResetToken(ctx, "dan@example.com", "expired", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = store.FindUserByResetToken(ctx, "expired")
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestFindOrCreateChat_Idempotent(t *testing.T) {
	store, ctx := setupTestStore(t)

	alice := mustUser(t, store, ctx, "alice")
	bob := mustUser(t, store, ctx, "bob")

	first, created, err := store.FindOrCreateChat(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, first.Participants, 2)
	assert.Empty(t, first.Messages)

	// Same pair in either order resolves to the same chat.
	second, created, err := store.FindOrCreateChat(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestFindOrCreateChat_WithSelfRejected(t *testing.T) {
	store, ctx := setupTestStore(t)

	alice := mustUser(t, store, ctx, "alice")
	_, _, err := store.FindOrCreateChat(ctx, alice.ID, alice.ID)
	var validation *registrystore.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "otherUserId", validation.Field)
}

func TestFindOrCreateChat_UnknownUser(t *testing.T) {
	store, ctx := setupTestStore(t)

	alice := mustUser(t, store, ctx, "alice")
	_, _, err := store.FindOrCreateChat(ctx, alice.ID, uuid.New())
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestAppendChatMessage(t *testing.T) {
	store, ctx := setupTestStore(t)

	alice := mustUser(t, store, ctx, "alice")
	bob := mustUser(t, store, ctx, "bob")
	chat, _, err := store.FindOrCreateChat(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	msg, detail, err := store.AppendChatMessage(ctx, chat.ID, alice.ID, "  hello bob  ")
	require.NoError(t, err)
	assert.Equal(t, "hello bob", msg.Content)
	assert.Equal(t, alice.ID, msg.Sender)
	assert.False(t, msg.IsRead)

	require.NotNil(t, detail.LastMessage)
	assert.Equal(t, "hello bob", detail.LastMessage.Content)
	assert.Equal(t, alice.ID, detail.LastMessage.Sender)
	assert.False(t, detail.LastActivity.Before(detail.LastMessage.Timestamp))

	// Stored document agrees with the returned detail.
	got, err := store.GetChatWithMessages(ctx, chat.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello bob", got.Messages[0].Content)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "hello bob", got.LastMessage.Content)
}

func TestAppendChatMessage_EmptyRejected(t *testing.T) {
	store, ctx := setupTestStore(t)

	alice := mustUser(t, store, ctx, "alice")
	bob := mustUser(t, store, ctx, "bob")
	chat, _, err := store.FindOrCreateChat(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	var validation *registrystore.ValidationError
	_, _, err = store.AppendChatMessage(ctx, chat.ID, alice.ID, "   ")
	require.ErrorAs(t, err, &validation)

	// Nothing was written.
	got, err := store.GetChatWithMessages(ctx, chat.ID, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
	assert.Nil(t, got.LastMessage)
}

func TestGetChatWithMessages_MarksOnlyOthersRead(t *testing.T) {
	store, ctx := setupTestStore(t)

	alice := mustUser(t, store, ctx, "alice")
	bob := mustUser(t, store, ctx, "bob")
	chat, _, err := store.FindOrCreateChat(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, _, err = store.AppendChatMessage(ctx, chat.ID, alice.ID, "from alice")
	require.NoError(t, err)
	_, _, err = store.AppendChatMessage(ctx, chat.ID, bob.ID, "from bob")
	require.NoError(t, err)

	// Bob opens the chat: alice's message flips, bob's own stays untouched.
	got, err := store.GetChatWithMessages(ctx, chat.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	for _, m := range got.Messages {
		if m.Sender == alice.ID {
			assert.True(t, m.IsRead)
		} else {
			assert.False(t, m.IsRead)
		}
	}

	// Repeat open is a no-op.
	again, err := store.GetChatWithMessages(ctx, chat.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Messages, again.Messages)

	total, err := store.UnreadChatTotal(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	// Alice still has bob's message unread.
	total, err = store.UnreadChatTotal(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestUnreadChatTotal_AcrossChats(t *testing.T) {
	store, ctx := setupTestStore(t)

	alice := mustUser(t, store, ctx, "alice")
	bob := mustUser(t, store, ctx, "bob")
	carol := mustUser(t, store, ctx, "carol")

	chatAB, _, err := store.FindOrCreateChat(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	chatAC, _, err := store.FindOrCreateChat(ctx, alice.ID, carol.ID)
	require.NoError(t, err)

	_, _, err = store.AppendChatMessage(ctx, chatAB.ID, bob.ID, "one")
	require.NoError(t, err)
	_, _, err = store.AppendChatMessage(ctx, chatAB.ID, bob.ID, "two")
	require.NoError(t, err)
	_, _, err = store.AppendChatMessage(ctx, chatAC.ID, carol.ID, "three")
	require.NoError(t, err)
	// Alice's own message never counts against her.
	_, _, err = store.AppendChatMessage(ctx, chatAC.ID, alice.ID, "reply")
	require.NoError(t, err)

	total, err := store.UnreadChatTotal(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestChatAccess_NonParticipant(t *testing.T) {
	store, ctx := setupTestStore(t)

	alice := mustUser(t, store, ctx, "alice")
	bob := mustUser(t, store, ctx, "bob")
	mallory := mustUser(t, store, ctx, "mallory")
	chat, _, err := store.FindOrCreateChat(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	var forbidden *registrystore.ForbiddenError
	_, err = store.GetChatWithMessages(ctx, chat.ID, mallory.ID)
	require.ErrorAs(t, err, &forbidden)

	_, _, err = store.AppendChatMessage(ctx, chat.ID, mallory.ID, "let me in")
	require.ErrorAs(t, err, &forbidden)

	err = store.DeleteChat(ctx, chat.ID, mallory.ID)
	require.ErrorAs(t, err, &forbidden)

	// Unknown chat id is not-found, not forbidden.
	var notFound *registrystore.NotFoundError
	_, err = store.GetChatWithMessages(ctx, uuid.New(), alice.ID)
	require.ErrorAs(t, err, &notFound)
}

func TestDeleteChat(t *testing.T) {
	store, ctx := setupTestStore(t)

	alice := mustUser(t, store, ctx, "alice")
	bob := mustUser(t, store, ctx, "bob")
	chat, _, err := store.FindOrCreateChat(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	require.NoError(t, store.DeleteChat(ctx, chat.ID, alice.ID))

	var notFound *registrystore.NotFoundError
	_, err = store.GetChatWithMessages(ctx, chat.ID, alice.ID)
	require.ErrorAs(t, err, &notFound)

	// A fresh start creates a brand new chat.
	fresh, created, err := store.FindOrCreateChat(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, chat.ID, fresh.ID)
}

func TestListChats_OrderAndUnread(t *testing.T) {
	store, ctx := setupTestStore(t)

	alice := mustUser(t, store, ctx, "alice")
	bob := mustUser(t, store, ctx, "bob")
	carol := mustUser(t, store, ctx, "carol")

	chatAB, _, err := store.FindOrCreateChat(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	chatAC, _, err := store.FindOrCreateChat(ctx, alice.ID, carol.ID)
	require.NoError(t, err)

	_, _, err = store.AppendChatMessage(ctx, chatAC.ID, carol.ID, "early")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond) // ensure ordering
	_, _, err = store.AppendChatMessage(ctx, chatAB.ID, bob.ID, "late")
	require.NoError(t, err)

	chats, err := store.ListChats(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, chats, 2)

	// Most recent activity first.
	assert.Equal(t, chatAB.ID, chats[0].ID)
	assert.Equal(t, bob.ID, chats[0].OtherUser.ID)
	assert.Equal(t, int64(1), chats[0].UnreadCount)
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, "late", chats[0].LastMessage.Content)

	assert.Equal(t, chatAC.ID, chats[1].ID)
	assert.Equal(t, carol.ID, chats[1].OtherUser.ID)
}

func TestListProducts_FiltersAndSort(t *testing.T) {
	store, ctx := setupTestStore(t)

	seller := mustUser(t, store, ctx, "seller")
	for _, p := range []model.Product{
		{Name: "Red Chair", Description: "comfy", Price: 40, Condition: model.ConditionUsed, Category: "Furniture", Location: "Austin", UserID: seller.ID},
		{Name: "Blue Chair", Description: "wooden", Price: 80, Condition: model.ConditionVintage, Category: "Furniture", Location: "Dallas", UserID: seller.ID},
		{Name: "Desk Lamp", Description: "a red lamp", Price: 15, Condition: model.ConditionNew, Category: "Lighting", Location: "Austin", UserID: seller.ID},
	} {
		_, err := store.CreateProduct(ctx, p)
		require.NoError(t, err)
	}

	result, err := store.ListProducts(ctx, registrystore.ProductQuery{Category: "Furniture"})
	require.NoError(t, err)
	assert.Len(t, result.Data, 2)

	// Search matches name or description, case-insensitive.
	result, err = store.ListProducts(ctx, registrystore.ProductQuery{Search: "RED"})
	require.NoError(t, err)
	assert.Len(t, result.Data, 2)

	minPrice := 20.0
	result, err = store.ListProducts(ctx, registrystore.ProductQuery{MinPrice: &minPrice, SortBy: "price_low"})
	require.NoError(t, err)
	require.Len(t, result.Data, 2)
	assert.Equal(t, "Red Chair", result.Data[0].Name)
	assert.Equal(t, "Blue Chair", result.Data[1].Name)

	// Pagination envelope.
	page, limit := 1, 2
	result, err = store.ListProducts(ctx, registrystore.ProductQuery{Page: &page, Limit: &limit})
	require.NoError(t, err)
	assert.True(t, result.Paginated)
	assert.Equal(t, int64(3), result.Total)
	assert.Equal(t, 2, result.TotalPages)
	assert.Len(t, result.Data, 2)

	// Seller summary is attached.
	require.NotNil(t, result.Data[0].Seller)
	assert.Equal(t, seller.ID, result.Data[0].Seller.ID)
}

func TestProductViews(t *testing.T) {
	store, ctx := setupTestStore(t)

	seller := mustUser(t, store, ctx, "seller")
	product, err := store.CreateProduct(ctx, model.Product{
		Name: "Clock", Price: 10, Condition: model.ConditionHeritage, Category: "Decor", UserID: seller.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), product.Views)

	bumped, err := store.IncrementProductViews(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bumped.Views)

	bumped, err = store.IncrementProductViews(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bumped.Views)
}

func TestProductOwnership(t *testing.T) {
	store, ctx := setupTestStore(t)

	seller := mustUser(t, store, ctx, "seller")
	other := mustUser(t, store, ctx, "other")
	product, err := store.CreateProduct(ctx, model.Product{
		Name: "Bike", Price: 120, Condition: model.ConditionUsed, Category: "Sport", UserID: seller.ID,
	})
	require.NoError(t, err)

	var forbidden *registrystore.ForbiddenError
	newName := "Stolen Bike"
	_, err = store.UpdateProduct(ctx, product.ID, other.ID, registrystore.ProductUpdate{Name: &newName})
	require.ErrorAs(t, err, &forbidden)
	err = store.DeleteProduct(ctx, product.ID, other.ID)
	require.ErrorAs(t, err, &forbidden)

	updated, err := store.UpdateProduct(ctx, product.ID, seller.ID, registrystore.ProductUpdate{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Stolen Bike", updated.Name)

	require.NoError(t, store.DeleteProduct(ctx, product.ID, seller.ID))
	_, err = store.GetProduct(ctx, product.ID)
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestComments_CountMaintained(t *testing.T) {
	store, ctx := setupTestStore(t)

	seller := mustUser(t, store, ctx, "seller")
	buyer := mustUser(t, store, ctx, "buyer")
	product, err := store.CreateProduct(ctx, model.Product{
		Name: "Rug", Price: 60, Condition: model.ConditionVintage, Category: "Home", UserID: seller.ID,
	})
	require.NoError(t, err)

	comment, err := store.CreateComment(ctx, buyer.ID, product.ID, "still available?")
	require.NoError(t, err)
	require.NotNil(t, comment.Author)
	assert.Equal(t, buyer.ID, comment.Author.ID)

	got, err := store.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CommentCount)

	comments, err := store.ListProductComments(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)

	// Only the author may edit or delete.
	var forbidden *registrystore.ForbiddenError
	_, err = store.UpdateComment(ctx, comment.ID, seller.ID, "edited")
	require.ErrorAs(t, err, &forbidden)

	require.NoError(t, store.DeleteComment(ctx, comment.ID, buyer.ID))
	got, err = store.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.CommentCount)
}

func TestProductDeleteCascades(t *testing.T) {
	store, ctx := setupTestStore(t)

	seller := mustUser(t, store, ctx, "seller")
	fan := mustUser(t, store, ctx, "fan")
	product, err := store.CreateProduct(ctx, model.Product{
		Name: "Poster", Price: 5, Condition: model.ConditionNew, Category: "Art", UserID: seller.ID,
	})
	require.NoError(t, err)

	_, err = store.CreateComment(ctx, fan.ID, product.ID, "love it")
	require.NoError(t, err)
	require.NoError(t, store.AddFavorite(ctx, fan.ID, product.ID))

	require.NoError(t, store.DeleteProduct(ctx, product.ID, seller.ID))

	_, err = store.ListProductComments(ctx, product.ID)
	assert.True(t, errors.As(err, new(*registrystore.NotFoundError)))

	favorites, err := store.ListFavorites(ctx, fan.ID)
	require.NoError(t, err)
	assert.Empty(t, favorites)

	user, err := store.GetUser(ctx, fan.ID)
	require.NoError(t, err)
	assert.Empty(t, user.Favorites)
}

func TestFindOrCreateChat_ConcurrentStart(t *testing.T) {
	store, ctx := setupTestStore(t)

	alice := mustUser(t, store, ctx, "race-alice")
	bob := mustUser(t, store, ctx, "race-bob")

	const starters = 8
	type result struct {
		chatID  uuid.UUID
		created bool
		err     error
	}
	results := make(chan result, starters)

	var wg sync.WaitGroup
	for i := 0; i < starters; i++ {
		wg.Add(1)
		// Alternate which side starts so both orderings hit the race.
		userID, otherID := alice.ID, bob.ID
		if i%2 == 1 {
			userID, otherID = bob.ID, alice.ID
		}
		go func() {
			defer wg.Done()
			chat, created, err := store.FindOrCreateChat(ctx, userID, otherID)
			if err != nil {
				results <- result{err: err}
				return
			}
			results <- result{chatID: chat.ID, created: created}
		}()
	}
	wg.Wait()
	close(results)

	var chatIDs []uuid.UUID
	createdCount := 0
	for r := range results {
		require.NoError(t, r.err)
		chatIDs = append(chatIDs, r.chatID)
		if r.created {
			createdCount++
		}
	}
	require.Len(t, chatIDs, starters)
	for _, id := range chatIDs {
		assert.Equal(t, chatIDs[0], id, "every starter must land on the same chat")
	}
	assert.Equal(t, 1, createdCount, "exactly one starter observes the create")
}

func TestAppendChatMessage_ConcurrentAppends(t *testing.T) {
	store, ctx := setupTestStore(t)

	alice := mustUser(t, store, ctx, "flood-alice")
	bob := mustUser(t, store, ctx, "flood-bob")
	chat, _, err := store.FindOrCreateChat(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	const total = 20
	errs := make(chan error, total)
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		sender := alice.ID
		if i%2 == 1 {
			sender = bob.ID
		}
		content := fmt.Sprintf("msg-%d", i)
		go func() {
			defer wg.Done()
			_, _, err := store.AppendChatMessage(ctx, chat.ID, sender, content)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.GetChatWithMessages(ctx, chat.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, total, "no append may be lost")

	seen := map[string]bool{}
	for _, m := range got.Messages {
		seen[m.Content] = true
	}
	for i := 0; i < total; i++ {
		assert.True(t, seen[fmt.Sprintf("msg-%d", i)])
	}

	// Commit order defines both array order and last_message, so the chat
	// summary can never disagree with the message history. Timestamps are
	// taken before the write and may interleave; array order is the truth.
	last := got.Messages[len(got.Messages)-1]
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, last.Content, got.LastMessage.Content)
	assert.Equal(t, last.Sender, got.LastMessage.Sender)
	assert.True(t, got.LastActivity.Equal(got.LastMessage.Timestamp) || got.LastActivity.After(got.LastMessage.Timestamp))
}

func TestMigrateAll_MissingConfig(t *testing.T) {
	_ = mongo.ForceImport
	err := registrystore.MigrateAll(context.Background())
	require.ErrorContains(t, err, "no config in context")
}
