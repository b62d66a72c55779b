package identity

import (
	"context"
	"encoding/base64"
	"testing"
)

type fakeDecrypter struct {
	plaintext []byte
	err       error
}

func (f *fakeDecrypter) Decrypt(_ context.Context, _ []byte) ([]byte, error) {
	return f.plaintext, f.err
}

func TestLoadViaKMS_HexPlaintext(t *testing.T) {
	hexKey := "aa111111111111111111111111111111111111111111111111111111111111aa"
	id1, err := FromHex(hexKey)
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}

	decrypter := &fakeDecrypter{plaintext: []byte("0x" + hexKey)}
	ciphertext := base64.StdEncoding.EncodeToString([]byte("unused-because-fake-decrypter"))

	id2, err := loadViaKMS(context.Background(), decrypter, ciphertext)
	if err != nil {
		t.Fatalf("loadViaKMS: %v", err)
	}
	if id2.Address != id1.Address {
		t.Errorf("address = %s, want %s", id2.Address, id1.Address)
	}
}

func TestLoadViaKMS_BadBase64(t *testing.T) {
	decrypter := &fakeDecrypter{}
	_, err := loadViaKMS(context.Background(), decrypter, "not-valid-base64!!!")
	if err == nil {
		t.Fatal("expected an error for invalid base64 ciphertext")
	}
}
