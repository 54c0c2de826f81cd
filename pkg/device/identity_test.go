package device

import "testing"

func TestParseIdentityHappyPath(t *testing.T) {
	lines := [5]string{
		"V1_3 PicoLA",
		"FREQ:100000000",
		"BLASTFREQ:200000000",
		"BUFFER:262144",
		"CHANNELS:24",
	}
	id, err := parseIdentity(lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.MaxFrequency != 100000000 || id.BlastFrequency != 200000000 {
		t.Errorf("unexpected frequencies: %+v", id)
	}
	if id.ChannelCount != 24 {
		t.Errorf("ChannelCount = %d, want 24", id.ChannelCount)
	}
	wantMin := uint32((uint64(100000000) * 2) / 65535)
	if id.MinFrequency() != wantMin {
		t.Errorf("MinFrequency() = %d, want %d", id.MinFrequency(), wantMin)
	}
}

func TestParseIdentityInvalidFrequencyTakesPrecedence(t *testing.T) {
	lines := [5]string{
		"V0_1", // also an unsupported version
		"FREQ:notanumber",
		"BLASTFREQ:1",
		"BUFFER:1",
		"CHANNELS:1",
	}
	_, err := parseIdentity(lines)
	if err == nil {
		t.Fatal("expected error")
	}
	// Must fail on the frequency line, not the version line.
	want := "FREQ"
	if got := err.Error(); !contains(got, want) {
		t.Errorf("error = %q, want it to mention %q", got, want)
	}
}

func TestParseIdentityRejectsOutOfRangeChannelCount(t *testing.T) {
	lines := [5]string{
		"V1_0",
		"FREQ:1000",
		"BLASTFREQ:1000",
		"BUFFER:1000",
		"CHANNELS:25",
	}
	if _, err := parseIdentity(lines); err == nil {
		t.Fatal("expected error for channel count 25")
	}
}

func TestValidateVersion(t *testing.T) {
	if err := ValidateVersion("V1_0"); err != nil {
		t.Errorf("V1_0 should be accepted: %v", err)
	}
	if err := ValidateVersion("V0_9"); err == nil {
		t.Errorf("V0_9 should be rejected")
	}
	if err := ValidateVersion("garbage"); err == nil {
		t.Errorf("garbage should be rejected")
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
