package transport

import "testing"

func TestServerTLSConfigSelfSigned(t *testing.T) {
	conf, err := ServerTLSConfig("", "", DefaultALPN)
	if err != nil {
		t.Fatal(err)
	}
	if len(conf.Certificates) != 1 {
		t.Fatalf("want 1 certificate, got %d", len(conf.Certificates))
	}
	if len(conf.NextProtos) != 1 || conf.NextProtos[0] != DefaultALPN {
		t.Fatalf("alpn: %v", conf.NextProtos)
	}
}

func TestServerTLSConfigRejectsHalfPair(t *testing.T) {
	if _, err := ServerTLSConfig("cert.pem", "", DefaultALPN); err == nil {
		t.Fatal("want error for cert without key")
	}
}

func TestClientTLSConfigMissingCA(t *testing.T) {
	if _, err := ClientTLSConfig("does-not-exist.pem", false, DefaultALPN); err == nil {
		t.Fatal("want error for missing CA file")
	}
}
