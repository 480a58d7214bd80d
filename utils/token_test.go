package utils

import "testing"

func TestJwtRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		userId    int
		companyId int
		isAdmin   bool
	}{
		{name: "regular user", userId: 7, companyId: 3, isAdmin: false},
		{name: "platform admin", userId: 1, companyId: 1, isAdmin: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := JwtGenerate(tt.userId, tt.companyId, tt.isAdmin)
			if err != nil {
				t.Fatalf("JwtGenerate: %v", err)
			}
			claims, err := JwtValidate(token)
			if err != nil {
				t.Fatalf("JwtValidate: %v", err)
			}
			if claims.ID != tt.userId {
				t.Errorf("ID = %d, want %d", claims.ID, tt.userId)
			}
			if claims.CompanyId != tt.companyId {
				t.Errorf("CompanyId = %d, want %d", claims.CompanyId, tt.companyId)
			}
			if claims.IsAdmin != tt.isAdmin {
				t.Errorf("IsAdmin = %v, want %v", claims.IsAdmin, tt.isAdmin)
			}
		})
	}
}

func TestJwtValidateRejectsGarbage(t *testing.T) {
	if _, err := JwtValidate("not-a-token"); err == nil {
		t.Fatal("expected error for a malformed token")
	}
}
