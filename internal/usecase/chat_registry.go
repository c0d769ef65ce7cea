package usecase

import (
	"context"

	"lostpaws/internal/domain/entity"
	"lostpaws/internal/domain/repository"
	"lostpaws/pkg/errors"
	"lostpaws/pkg/logger"
)

// ChatRegistry creates chats and exposes listing and lookup. Creation is
// idempotent per (pet, user, owner) triple and enforces the per-user
// active-chat cap inside the store transaction.
type ChatRegistry struct {
	chats       repository.ChatRepository
	pets        repository.PetRepository
	identity    IdentityResolver
	activeLimit int
}

func NewChatRegistry(
	chats repository.ChatRepository,
	pets repository.PetRepository,
	identity IdentityResolver,
	activeLimit int,
) *ChatRegistry {
	return &ChatRegistry{
		chats:       chats,
		pets:        pets,
		identity:    identity,
		activeLimit: activeLimit,
	}
}

// GetOrCreate returns the active chat for the triple, creating it on first
// contact. The second return is true only when a new chat was inserted.
// No event fires for creation; only messages and state changes notify.
func (r *ChatRegistry) GetOrCreate(ctx context.Context, petID, userID, ownerID string) (*entity.Chat, bool, error) {
	if petID == "" || userID == "" || ownerID == "" {
		return nil, false, errors.BadRequest("pet_id, user_id and owner_id are required", nil)
	}
	if userID == ownerID {
		return nil, false, errors.BadRequest("you cannot open a chat with yourself", nil)
	}

	if _, err := r.pets.GetByID(ctx, petID); err != nil {
		return nil, false, err
	}

	chat, created, err := r.chats.GetOrCreate(ctx, petID, userID, ownerID, r.activeLimit)
	if err != nil {
		return nil, false, err
	}
	if created {
		logger.Info("chat %s created for pet %s between %s and %s", chat.ID, petID, userID, ownerID)
	}
	return chat, created, nil
}

// ListForParticipant returns the user's active chats joined with pet summary,
// latest message and resolved emails, newest-updated first. Chats whose pet
// is no longer active are hidden. With admin=true the participant and status
// filters are bypassed entirely.
func (r *ChatRegistry) ListForParticipant(ctx context.Context, userID string, admin bool) ([]*entity.ChatView, error) {
	var (
		chats []*entity.Chat
		err   error
	)
	if admin {
		chats, err = r.chats.ListAll(ctx)
	} else {
		if userID == "" {
			return nil, errors.BadRequest("user_id is required", nil)
		}
		chats, err = r.chats.ListByParticipant(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	petIDs := make([]string, 0, len(chats))
	for _, chat := range chats {
		petIDs = append(petIDs, chat.PetID)
	}
	pets, err := r.pets.GetByIDs(ctx, petIDs)
	if err != nil {
		return nil, err
	}

	visible := make([]*entity.Chat, 0, len(chats))
	for _, chat := range chats {
		pet := pets[chat.PetID]
		if !admin && (pet == nil || pet.Status != entity.PetStatusActive) {
			continue
		}
		visible = append(visible, chat)
	}

	return r.assembleViews(ctx, visible, pets)
}

// GetByID fetches one chat with the same joins as listings.
func (r *ChatRegistry) GetByID(ctx context.Context, chatID string) (*entity.ChatView, error) {
	chat, err := r.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}

	pets, err := r.pets.GetByIDs(ctx, []string{chat.PetID})
	if err != nil {
		return nil, err
	}

	views, err := r.assembleViews(ctx, []*entity.Chat{chat}, pets)
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

func (r *ChatRegistry) assembleViews(ctx context.Context, chats []*entity.Chat, pets map[string]*entity.PetSummary) ([]*entity.ChatView, error) {
	chatIDs := make([]string, 0, len(chats))
	participantIDs := make([]string, 0, len(chats)*2)
	for _, chat := range chats {
		chatIDs = append(chatIDs, chat.ID)
		participantIDs = append(participantIDs, chat.UserID, chat.OwnerID)
	}

	latest, err := r.chats.LatestMessages(ctx, chatIDs)
	if err != nil {
		return nil, err
	}
	emails := r.identity.ResolveEmails(ctx, participantIDs)

	views := make([]*entity.ChatView, 0, len(chats))
	for _, chat := range chats {
		views = append(views, &entity.ChatView{
			Chat:        chat,
			Pet:         pets[chat.PetID],
			LastMessage: latest[chat.ID],
			UserEmail:   emails[chat.UserID],
			OwnerEmail:  emails[chat.OwnerID],
		})
	}
	return views, nil
}
