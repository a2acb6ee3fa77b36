package utils

import (
	"fmt"
	"os"
	"strings"
)

// SecretsDir - каталог Docker Secrets. Переменная нужна тестам.
var SecretsDir = "/run/secrets"

// ReadSecret читает секрет из файла Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	filePath := fmt.Sprintf("%s/%s", SecretsDir, secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// SecretOrEnv возвращает секрет из файла, а при его отсутствии значение переменной окружения.
// Пустая строка означает, что секрет не настроен.
func SecretOrEnv(secretName, envKey string) string {
	if v, err := ReadSecret(secretName); err == nil {
		return v
	}
	return strings.TrimSpace(os.Getenv(envKey))
}
