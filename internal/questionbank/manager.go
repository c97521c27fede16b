package questionbank

import (
	"context"

	"github.com/hyperjump/kaiwa/internal/models"
)

// Manager exposes both bank types behind one retrieval contract. An empty rag id addresses the
// general bank.
type Manager struct {
	General      *GeneralBank
	Personalized *PersonalizedBank
}

// NewManager pairs a general and a personalized bank.
func NewManager(general *GeneralBank, personalized *PersonalizedBank) *Manager {
	return &Manager{General: general, Personalized: personalized}
}

// GetRandom selects from the personalized bank ragID, or from the general bank when ragID is "".
func (m *Manager) GetRandom(ctx context.Context, ragID string, cat models.Category, difficulty models.Difficulty, exclude []string) (*models.Question, error) {
	if ragID == "" {
		return m.General.GetRandom(ctx, cat, difficulty, exclude)
	}
	return m.Personalized.GetRandom(ctx, ragID, cat, difficulty, exclude)
}

// QuerySemantic ranks questions of the addressed bank by similarity to text.
func (m *Manager) QuerySemantic(ctx context.Context, ragID, text string, k int) ([]*models.Question, error) {
	if ragID == "" {
		return m.General.Query(ctx, text, k, "")
	}
	return m.Personalized.Query(ctx, ragID, text, k)
}

// Stats tabulates the addressed bank. General stats also carry the personalized registry count.
func (m *Manager) Stats(ctx context.Context, ragID string) (*Stats, error) {
	if ragID != "" {
		return m.Personalized.Stats(ctx, ragID)
	}
	s, err := m.General.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if m.Personalized != nil {
		n, err := m.Personalized.Count(ctx)
		if err != nil {
			return nil, err
		}
		s.PersonalizedBanks = n
	}
	return s, nil
}
