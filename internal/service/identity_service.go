package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"
	"rfid-fare-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxUIDLength = 64

// IdentityService implements ports.IdentityIndex.
type IdentityService struct {
	userRepo  ports.UserRepository
	encSvc    ports.EncryptionService
	digestSvc ports.DigestService
	log       zerolog.Logger
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(
	userRepo ports.UserRepository,
	encSvc ports.EncryptionService,
	digestSvc ports.DigestService,
	log zerolog.Logger,
) *IdentityService {
	return &IdentityService{
		userRepo:  userRepo,
		encSvc:    encSvc,
		digestSvc: digestSvc,
		log:       log,
	}
}

// Hash returns the search digest of value.
func (s *IdentityService) Hash(value string) string {
	return s.digestSvc.Digest(value)
}

// Encrypt returns the ciphertext of value, or "" for empty input.
func (s *IdentityService) Encrypt(value string) (string, error) {
	return s.encSvc.Encrypt(value)
}

// Reveal decrypts a stored field. Values that do not decrypt (legacy plaintext,
// rotated keys, corruption) come back unchanged and tagged as fallback.
func (s *IdentityService) Reveal(ciphertext string) domain.Revealed {
	if ciphertext == "" {
		return domain.Decrypted("")
	}
	plaintext, err := s.encSvc.Decrypt(ciphertext)
	if err != nil {
		s.log.Debug().Err(err).Int("len", len(ciphertext)).Msg("decrypt fallback")
		return domain.Fallback(ciphertext)
	}
	if plaintext == "" {
		return domain.Fallback(ciphertext)
	}
	return domain.Decrypted(plaintext)
}

// LinkCard binds a card to a user. The card fields are written once.
func (s *IdentityService) LinkCard(ctx context.Context, userID uuid.UUID, rawUID string) error {
	uid, err := validateUID(rawUID)
	if err != nil {
		return err
	}

	uidEnc, err := s.encSvc.Encrypt(uid)
	if err != nil {
		return apperror.ErrEncryptionFailure(fmt.Errorf("encrypt card uid: %w", err))
	}
	digest := s.digestSvc.Digest(uid)

	err = s.userRepo.LinkCard(ctx, userID, uidEnc, digest)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCardDigestTaken):
		return apperror.ErrCardAlreadyLinked()
	case errors.Is(err, domain.ErrCardAlreadyLinked):
		return apperror.ErrAlreadyLinked()
	case errors.Is(err, domain.ErrUserNotFound):
		return apperror.ErrNotFound("User")
	default:
		return storageError(fmt.Errorf("link card: %w", err))
	}

	s.log.Info().Str("user_id", userID.String()).Msg("card linked")
	return nil
}

// ResolveByCard finds the user holding the card through the digest index.
func (s *IdentityService) ResolveByCard(ctx context.Context, rawUID string) (*domain.User, error) {
	uid, err := validateUID(rawUID)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByCardDigest(ctx, s.digestSvc.Digest(uid))
	if err != nil {
		return nil, storageError(fmt.Errorf("resolve card: %w", err))
	}
	if user == nil {
		return nil, apperror.ErrNotFound("Card")
	}
	return user, nil
}

// Profile returns the display form of a user, accepting fallback values.
func (s *IdentityService) Profile(ctx context.Context, userID uuid.UUID) (*ports.UserProfile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, storageError(fmt.Errorf("get user: %w", err))
	}
	if user == nil {
		return nil, apperror.ErrNotFound("User")
	}

	profile := &ports.UserProfile{
		ID:            user.ID,
		Name:          user.Name,
		Role:          user.Role,
		Email:         s.Reveal(deref(user.EmailEnc)).Value,
		Phone:         s.Reveal(deref(user.PhoneEnc)).Value,
		CardLinked:    user.HasCard(),
		WalletBalance: user.WalletBalance,
		IsBlocked:     user.IsBlocked,
	}
	if user.HasCard() {
		profile.CardUIDMasked = MaskUID(s.Reveal(deref(user.CardUIDEnc)).Value)
	}
	return profile, nil
}

// MaskUID keeps the last four characters of a card UID.
func MaskUID(uid string) string {
	if uid == "" {
		return ""
	}
	if len(uid) <= 4 {
		return strings.Repeat("*", len(uid))
	}
	return strings.Repeat("*", len(uid)-4) + uid[len(uid)-4:]
}

func validateUID(rawUID string) (string, error) {
	uid := NormalizeUID(rawUID)
	if uid == "" {
		return "", apperror.Validation("RFID UID is required")
	}
	if len(uid) > maxUIDLength {
		return "", apperror.Validation("RFID UID is too long")
	}
	return uid, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
