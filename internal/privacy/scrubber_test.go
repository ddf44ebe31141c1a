package privacy

import (
	"sync"
	"testing"

	"github.com/raaihank/pii-scrubber/internal/config"
	"github.com/raaihank/pii-scrubber/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownDefaultMode(t *testing.T) {
	_, err := New(config.PrivacyConfig{DefaultMode: "mask"}, logger.NewNop(), nil)
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestScrubberProcess(t *testing.T) {
	s, err := New(config.PrivacyConfig{DefaultMode: "empty"}, logger.NewNop(), staticRecognizer{names: []string{"John Smith"}})
	require.NoError(t, err)
	assert.Equal(t, ModeEmpty, s.DefaultMode())
	assert.Equal(t, "custom", s.RecognizerName())

	text := "Contact John Smith at john.smith@example.com or 192.168.1.1"
	result := s.Process(text, ModePlaceholder)

	assert.Equal(t, text, result.Original)
	assert.Equal(t, "Contact [NAME] at [EMAIL] or [IP_ADDRESS]", result.Redacted)
	assert.Equal(t, 3, result.TotalEntities())
	assert.Equal(t, map[Category]int{CategoryName: 1, CategoryEmail: 1, CategoryIPAddress: 1}, result.Counts)
}

func TestScrubberConcurrentUse(t *testing.T) {
	s, err := New(config.PrivacyConfig{DefaultMode: "placeholder"}, logger.NewNop(), nil)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Redact("Meeting in London on 2024-03-01 at 14:30", ModePlaceholder)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "Meeting in [LOCATION] on [DATE] at [TIME]", r)
	}
}

func TestCountByCategory(t *testing.T) {
	counts := CountByCategory([]Match{
		{Category: CategoryPhone}, {Category: CategoryDate}, {Category: CategoryPhone},
	})
	assert.Equal(t, 2, counts[CategoryPhone])
	assert.Equal(t, 1, counts[CategoryDate])
	assert.Zero(t, counts[CategoryURL])
}
