package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/model"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// chatDetail builds a ChatDetail from a chat document, resolving participant summaries.
func (s *MongoStore) chatDetail(ctx context.Context, doc *chatDoc) (*registrystore.ChatDetail, error) {
	summaries, err := s.userSummaries(ctx, doc.Participants)
	if err != nil {
		return nil, err
	}
	participants := make([]model.UserSummary, 0, len(doc.Participants))
	for _, p := range doc.Participants {
		if summary, ok := summaries[p]; ok {
			participants = append(participants, summary)
		} else {
			// Participant account was deleted; keep the id so the chat still renders.
			participants = append(participants, model.UserSummary{ID: strToUUID(p)})
		}
	}
	messages := make([]model.ChatMessage, len(doc.Messages))
	for i := range doc.Messages {
		messages[i] = doc.Messages[i].toModel()
	}
	return &registrystore.ChatDetail{
		ID:           strToUUID(doc.ID),
		Participants: participants,
		Messages:     messages,
		LastMessage:  doc.LastMessage.toModel(),
		LastActivity: doc.LastActivity,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

// getChat loads a chat and verifies the requester is a participant.
func (s *MongoStore) getChat(ctx context.Context, chatID, requesterID uuid.UUID) (*chatDoc, error) {
	var doc chatDoc
	err := s.chats().FindOne(ctx, bson.M{"_id": uuidToStr(chatID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "chat", ID: chatID.String()}
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if !doc.hasParticipant(uuidToStr(requesterID)) {
		return nil, &registrystore.ForbiddenError{}
	}
	return &doc, nil
}

func (s *MongoStore) FindOrCreateChat(ctx context.Context, userID, otherUserID uuid.UUID) (*registrystore.ChatDetail, bool, error) {
	if userID == otherUserID {
		return nil, false, &registrystore.ValidationError{Field: "otherUserId", Message: "cannot start a conversation with yourself"}
	}
	if err := s.users().FindOne(ctx, bson.M{"_id": uuidToStr(otherUserID)}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, &registrystore.NotFoundError{Resource: "user", ID: otherUserID.String()}
		}
		return nil, false, fmt.Errorf("failed to check user: %w", err)
	}

	key := participantsKey(userID, otherUserID)
	var existing chatDoc
	err := s.chats().FindOne(ctx, bson.M{"participants_key": key}).Decode(&existing)
	if err == nil {
		detail, derr := s.chatDetail(ctx, &existing)
		return detail, false, derr
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("failed to find chat: %w", err)
	}

	now := time.Now()
	doc := chatDoc{
		ID:              uuid.New().String(),
		Participants:    []string{uuidToStr(userID), uuidToStr(otherUserID)},
		ParticipantsKey: key,
		Messages:        []chatMessageDoc{},
		LastActivity:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := s.chats().InsertOne(ctx, doc); err != nil {
		// A concurrent start for the same pair won the unique index race.
		if mongo.IsDuplicateKeyError(err) {
			var winner chatDoc
			if ferr := s.chats().FindOne(ctx, bson.M{"participants_key": key}).Decode(&winner); ferr != nil {
				return nil, false, fmt.Errorf("failed to load chat after create race: %w", ferr)
			}
			detail, derr := s.chatDetail(ctx, &winner)
			return detail, false, derr
		}
		return nil, false, fmt.Errorf("failed to create chat: %w", err)
	}
	detail, err := s.chatDetail(ctx, &doc)
	return detail, true, err
}

func (s *MongoStore) ListChats(ctx context.Context, userID uuid.UUID) ([]registrystore.ChatSummary, error) {
	uid := uuidToStr(userID)
	opts := options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}})
	cur, err := s.chats().Find(ctx, bson.M{"participants": uid}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	var docs []chatDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode chats: %w", err)
	}

	otherIDs := make([]string, 0, len(docs))
	for i := range docs {
		otherIDs = append(otherIDs, docs[i].otherParticipant(uid))
	}
	others, err := s.userSummaries(ctx, otherIDs)
	if err != nil {
		return nil, err
	}

	summaries := make([]registrystore.ChatSummary, len(docs))
	for i := range docs {
		otherID := docs[i].otherParticipant(uid)
		other, ok := others[otherID]
		if !ok {
			other = model.UserSummary{ID: strToUUID(otherID)}
		}
		var unread int64
		for _, m := range docs[i].Messages {
			if !m.IsRead && m.Sender != uid {
				unread++
			}
		}
		summaries[i] = registrystore.ChatSummary{
			ID:           strToUUID(docs[i].ID),
			OtherUser:    other,
			LastMessage:  docs[i].LastMessage.toModel(),
			LastActivity: docs[i].LastActivity,
			UnreadCount:  unread,
		}
	}
	return summaries, nil
}

func (s *MongoStore) GetChatWithMessages(ctx context.Context, chatID, requesterID uuid.UUID) (*registrystore.ChatDetail, error) {
	doc, err := s.getChat(ctx, chatID, requesterID)
	if err != nil {
		return nil, err
	}

	// Flip every unread message we did not send in one update.
	uid := uuidToStr(requesterID)
	_, err = s.chats().UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": bson.M{"messages.$[m].is_read": true, "updated_at": time.Now()}},
		options.UpdateOne().SetArrayFilters([]interface{}{
			bson.M{"m.sender": bson.M{"$ne": uid}, "m.is_read": false},
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}
	for i := range doc.Messages {
		if doc.Messages[i].Sender != uid {
			doc.Messages[i].IsRead = true
		}
	}
	return s.chatDetail(ctx, doc)
}

func (s *MongoStore) AppendChatMessage(ctx context.Context, chatID, senderID uuid.UUID, content string) (*model.ChatMessage, *registrystore.ChatDetail, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, &registrystore.ValidationError{Field: "content", Message: "must not be empty"}
	}
	doc, err := s.getChat(ctx, chatID, senderID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	msg := chatMessageDoc{
		ID:        uuid.New().String(),
		Sender:    uuidToStr(senderID),
		Content:   content,
		Timestamp: now,
	}
	last := lastMessageDoc{Content: content, Sender: msg.Sender, Timestamp: now}

	// Message, last_message, and last_activity move together in one atomic update.
	res, err := s.chats().UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{
			"$push": bson.M{"messages": msg},
			"$set": bson.M{
				"last_message":  last,
				"last_activity": now,
				"updated_at":    now,
			},
		})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to append message: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, nil, &registrystore.NotFoundError{Resource: "chat", ID: chatID.String()}
	}

	doc.Messages = append(doc.Messages, msg)
	doc.LastMessage = &last
	doc.LastActivity = now
	doc.UpdatedAt = now
	detail, err := s.chatDetail(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	appended := msg.toModel()
	return &appended, detail, nil
}

func (s *MongoStore) DeleteChat(ctx context.Context, chatID, requesterID uuid.UUID) error {
	doc, err := s.getChat(ctx, chatID, requesterID)
	if err != nil {
		return err
	}
	if _, err := s.chats().DeleteOne(ctx, bson.M{"_id": doc.ID}); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

func (s *MongoStore) UnreadChatTotal(ctx context.Context, userID uuid.UUID) (int64, error) {
	uid := uuidToStr(userID)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"participants": uid}}},
		{{Key: "$unwind", Value: "$messages"}},
		{{Key: "$match", Value: bson.M{
			"messages.is_read": false,
			"messages.sender":  bson.M{"$ne": uid},
		}}},
		{{Key: "$count", Value: "unread"}},
	}
	cur, err := s.chats().Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	var results []struct {
		Unread int64 `bson:"unread"`
	}
	if err := cur.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("failed to decode unread count: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Unread, nil
}
