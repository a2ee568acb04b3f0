package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// resolveAuth finds the global authorization token: PORTAL_AUTH first, then
// the auth file. Both missing is a configuration error.
func resolveAuth(authFile string) (string, error) {
	if env := strings.TrimSpace(os.Getenv("PORTAL_AUTH")); env != "" {
		return env, nil
	}
	data, err := os.ReadFile(authFile)
	if err == nil {
		if val := strings.TrimSpace(string(data)); val != "" {
			return val, nil
		}
	}
	return "", fmt.Errorf("authorization not found: set PORTAL_AUTH or fill %s", authFile)
}

// parseAccounts reads the multi-account file. Accounts may carry the token
// inline or reference an environment variable via auth_env; entries without a
// resolvable token are skipped. When the file yields nothing, a single "main"
// account is synthesized from the global auth source.
func parseAccounts(accountsFile, authFile string) ([]Account, error) {
	payload, err := readJSONFile(accountsFile)
	if err != nil {
		return nil, err
	}

	var parsed []Account
	if list, ok := payload["accounts"].([]any); ok {
		for idx, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name := strings.TrimSpace(str(obj, "name"))
			if name == "" {
				name = fmt.Sprintf("account_%d", idx+1)
			}
			auth := strings.TrimSpace(str(obj, "auth"))
			if auth == "" {
				if authEnv := strings.TrimSpace(str(obj, "auth_env")); authEnv != "" {
					auth = strings.TrimSpace(os.Getenv(authEnv))
				}
			}
			if auth == "" {
				continue
			}
			parsed = append(parsed, Account{Name: name, Auth: auth})
		}
	}
	if len(parsed) > 0 {
		return parsed, nil
	}

	auth, err := resolveAuth(authFile)
	if err != nil {
		return nil, err
	}
	return []Account{{Name: "main", Auth: auth}}, nil
}

// parseTelegram merges the strategy document's telegram section with the
// TELEGRAM_* environment variables; the environment wins for the token and
// fills gaps for the rest.
func parseTelegram(raw map[string]any) TelegramSettings {
	sec, _ := raw["telegram"].(map[string]any)
	if sec == nil {
		sec = map[string]any{}
	}

	token := strings.TrimSpace(str(sec, "token"))
	if token == "" {
		token = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	}

	var chatIDs []int64
	switch ids := sec["chat_ids"].(type) {
	case []any:
		for _, item := range ids {
			if id, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(item)), 10, 64); err == nil {
				chatIDs = append(chatIDs, id)
			}
		}
	case string:
		chatIDs = parseChatIDList(ids)
	default:
		chatIDs = parseChatIDList(os.Getenv("TELEGRAM_CHAT_IDS"))
	}
	chatIDs = dedupeIDs(chatIDs)

	enabledRaw, present := sec["enabled"]
	if !present {
		if env := os.Getenv("TELEGRAM_ENABLED"); env != "" {
			enabledRaw = env
		}
	}
	enabled := toBool(enabledRaw, false) && token != ""

	return TelegramSettings{Enabled: enabled, Token: token, ChatIDs: chatIDs}
}

func parseChatIDList(s string) []int64 {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func dedupeIDs(ids []int64) []int64 {
	seen := map[int64]bool{}
	var out []int64
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
