package util

import (
	"bytes"
	"testing"
)

func TestSealOpen(t *testing.T) {
	key, err := RandomBytes(AESKeySize)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	plainText := []byte("hello world")
	aad := []byte("context")

	t.Run("RoundTrip", func(t *testing.T) {
		cipherText, err := Seal(plainText, key, aad)
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		decrypted, err := Open(cipherText, key, aad)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if !bytes.Equal(plainText, decrypted) {
			t.Errorf("expected %s, got %s", plainText, decrypted)
		}
	})

	t.Run("TamperAAD", func(t *testing.T) {
		cipherText, _ := Seal(plainText, key, aad)
		if _, err := Open(cipherText, key, []byte("wrong context")); err == nil {
			t.Error("expected error with wrong AAD, got nil")
		}
	})

	t.Run("TamperCipherText", func(t *testing.T) {
		cipherText, _ := Seal(plainText, key, aad)
		cipherText[len(cipherText)-1] ^= 0xFF
		if _, err := Open(cipherText, key, aad); err == nil {
			t.Error("expected error with tampered ciphertext, got nil")
		}
	})

	t.Run("RejectBadKeySize", func(t *testing.T) {
		if _, err := Seal(plainText, []byte("too short"), aad); err == nil {
			t.Error("expected error with wrong key size, got nil")
		}
	})

	t.Run("ShortCipherText", func(t *testing.T) {
		if _, err := Open([]byte{1, 2, 3}, key, aad); err == nil {
			t.Error("expected error for truncated ciphertext")
		}
	})
}

func TestDeriveKey(t *testing.T) {
	secret := []byte("secret")
	salt := []byte("salt")
	info := []byte("info")

	key1, err := DeriveKey(secret, salt, info, 0)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	if len(key1) != DefaultKeyLength {
		t.Errorf("expected key length %d, got %d", DefaultKeyLength, len(key1))
	}

	key2, _ := DeriveKey(secret, salt, info, 0)
	if !bytes.Equal(key1, key2) {
		t.Error("DeriveKey should be deterministic")
	}

	key3, _ := DeriveKey(secret, salt, []byte("different info"), 0)
	if bytes.Equal(key1, key3) {
		t.Error("different info should give a different key")
	}

	key4, _ := DeriveKey(secret, []byte("other salt"), info, 0)
	if bytes.Equal(key1, key4) {
		t.Error("different salt should give a different key")
	}

	short, err := DeriveKey(secret, salt, info, 16)
	if err != nil {
		t.Fatalf("DeriveKey(16) failed: %v", err)
	}
	if !bytes.Equal(short, key1[:16]) {
		t.Error("shorter output should be a prefix of the default length output")
	}

	if _, err := DeriveKey(nil, salt, info, 0); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestBytes(t *testing.T) {
	src := []byte{1, 2, 3}
	dst := CopyBytes(src)
	dst[0] = 9
	if src[0] != 1 {
		t.Error("CopyBytes should not alias the source")
	}
	if CopyBytes(nil) != nil {
		t.Error("CopyBytes(nil) should be nil")
	}

	WipeBytes(src)
	if !bytes.Equal(src, []byte{0, 0, 0}) {
		t.Errorf("WipeBytes left %v", src)
	}
}

func TestRandom(t *testing.T) {
	t.Run("RandomBytes", func(t *testing.T) {
		b1, err := RandomBytes(32)
		if err != nil {
			t.Fatalf("RandomBytes failed: %v", err)
		}
		b2, _ := RandomBytes(32)
		if len(b1) != 32 {
			t.Errorf("expected 32 bytes, got %d", len(b1))
		}
		if bytes.Equal(b1, b2) {
			t.Error("RandomBytes should produce different outputs")
		}
	})

	t.Run("RandomToken", func(t *testing.T) {
		s1, err := RandomToken(32)
		if err != nil {
			t.Fatalf("RandomToken failed: %v", err)
		}
		s2, _ := RandomToken(32)
		if len(s1) != 43 {
			t.Errorf("expected 43 chars, got %d", len(s1))
		}
		if s1 == s2 {
			t.Error("RandomToken should produce different outputs")
		}
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.png", "photo.png"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\cat.jpg`, "cat.jpg"},
		{"my photo (1).jpeg", "my_photo__1_.jpeg"},
		{"café.png", "cafe.png"},
		{".hidden.png", "hidden.png"},
		{"", "file"},
		{"..", "file"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
