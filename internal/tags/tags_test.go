package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabels(t *testing.T) {
	labels := Labels()
	require.Len(t, labels, 8)
	assert.Equal(t, []string{
		"ERAS", "Regional", "Opioid-sparing", "PONV",
		"GI recovery", "Airway", "ICU", "Obstetric",
	}, labels)
}

func TestInfer(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		abstract string
		want     []string
	}{
		{
			name:  "multiple rules fire in declaration order",
			title: "Dexmedetomidine for enhanced recovery after cesarean delivery",
			want:  []string{"ERAS", "Opioid-sparing", "Obstetric"},
		},
		{
			name:  "videolaryngoscopy maps to airway",
			title: "Videolaryngoscopy in the anticipated difficult airway",
			want:  []string{"Airway"},
		},
		{
			name:     "abstract alone can trigger a rule",
			title:    "A pragmatic multicentre trial",
			abstract: "Patients received an epidural before induction.",
			want:     []string{"Regional"},
		},
		{
			name:  "case-insensitive matching",
			title: "ENHANCED RECOVERY pathways and PONV prophylaxis",
			want:  []string{"ERAS", "PONV"},
		},
		{
			name:  "word boundaries keep short acronyms honest",
			title: "Operas and gigabit networks",
			want:  []string{},
		},
		{
			name:  "no match yields empty not nil",
			title: "Statistical methods for cluster randomised trials",
			want:  []string{},
		},
		{
			name:     "tag appears once despite repeated pattern hits",
			title:    "Ondansetron versus dexamethasone for postoperative nausea",
			abstract: "Antiemetic prophylaxis reduced vomiting.",
			want:     []string{"PONV"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Infer(tt.title, tt.abstract)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("deterministic", func(t *testing.T) {
		title := "Opioid-free anesthesia with ketamine and lidocaine for colorectal surgery"
		first := Infer(title, "")
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Infer(title, ""))
		}
	})

	t.Run("output is a subset of the configured labels", func(t *testing.T) {
		known := make(map[string]bool)
		for _, l := range Labels() {
			known[l] = true
		}
		got := Infer(
			"ERAS protocol with TAP block, opioid-sparing analgesia and early feeding",
			"ICU admission after difficult intubation during cesarean section.",
		)
		require.NotEmpty(t, got)
		for _, tag := range got {
			assert.True(t, known[tag], tag)
		}
	})
}
