package users

import "golang.org/x/crypto/bcrypt"

// ErrPasswordTooLong は bcrypt が扱えない 72 バイト超のパスワードです。
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// HashPassword はソルト付きの bcrypt ハッシュを返します。呼び出すたびに異なる値になります。
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword はハッシュに埋め込まれたソルトで平文を検証します。
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
