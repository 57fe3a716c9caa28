package tg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
	"github.com/zelenin/go-tdlib/client"
)

// TelegramClient: авторизованная сессия, реализует ports.SessionClient.
// Живёт одну операцию: Connect → вызовы → Close.
type TelegramClient struct {
	client *client.Client
	logger *slog.Logger
	selfId int64
	dir    string

	closeOnce sync.Once
}

func (t *TelegramClient) Self(ctx context.Context) (domain.Identity, error) {
	return getSelf(t.client)
}

// JoinChannel подписывается на публичный канал по его username
func (t *TelegramClient) JoinChannel(ctx context.Context, handle string) error {
	chat, err := t.searchPublicChat(handle)
	if err != nil {
		return err
	}
	if _, err := t.client.JoinChat(&client.JoinChatRequest{ChatId: chat.Id}); err != nil {
		t.logger.Error("JoinChat failed", "chat_id", chat.Id, "error", err)
		return classify("join chat", domain.KindRemoteCall, err)
	}
	t.logger.Info("Joined channel", "channel", handle)
	return nil
}

// ImportInvite вступает по хешу приглашения (t.me/+hash, t.me/joinchat/hash)
func (t *TelegramClient) ImportInvite(ctx context.Context, hash string) error {
	link := "https://t.me/+" + strings.TrimPrefix(hash, "+")
	if _, err := t.client.JoinChatByInviteLink(&client.JoinChatByInviteLinkRequest{InviteLink: link}); err != nil {
		t.logger.Error("JoinChatByInviteLink failed", "link", link, "error", err)
		return classify("join by invite", domain.KindRemoteCall, err)
	}
	t.logger.Info("Joined by invite link", "link", link)
	return nil
}

// LeaveChannel выходит из канала/супергруппы
func (t *TelegramClient) LeaveChannel(ctx context.Context, handle string) error {
	chat, err := t.searchPublicChat(handle)
	if err != nil {
		return err
	}
	if _, err := t.client.LeaveChat(&client.LeaveChatRequest{ChatId: chat.Id}); err != nil {
		t.logger.Error("LeaveChat failed", "chat_id", chat.Id, "error", err)
		return classify("leave chat", domain.KindRemoteCall, err)
	}
	t.logger.Info("Left channel", "channel", handle)
	return nil
}

// RemoveSelf выставляет собственному участнику статус Left
func (t *TelegramClient) RemoveSelf(ctx context.Context, handle string) error {
	chat, err := t.searchPublicChat(handle)
	if err != nil {
		return err
	}
	_, err = t.client.SetChatMemberStatus(&client.SetChatMemberStatusRequest{
		ChatId:   chat.Id,
		MemberId: &client.MessageSenderUser{UserId: t.selfId},
		Status:   &client.ChatMemberStatusLeft{},
	})
	if err != nil {
		t.logger.Error("SetChatMemberStatus(left) failed", "chat_id", chat.Id, "self_id", t.selfId, "error", err)
		return classify("remove self", domain.KindRemoteCall, err)
	}
	t.logger.Info("Removed self from chat", "chat_id", chat.Id)
	return nil
}

func (t *TelegramClient) searchPublicChat(handle string) (*client.Chat, error) {
	chat, err := t.client.SearchPublicChat(&client.SearchPublicChatRequest{Username: handle})
	if err != nil {
		t.logger.Error("SearchPublicChat failed", "username", handle, "error", err)
		return nil, classify("resolve "+handle, domain.KindRemoteCall, err)
	}
	return chat, nil
}

// Close останавливает клиента и удаляет его рабочий каталог
func (t *TelegramClient) Close() {
	t.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		closeAndWait(ctx, t.client, t.logger)
		if err := os.RemoveAll(t.dir); err != nil {
			t.logger.Warn("remove work dir", "dir", t.dir, "error", err)
		}
	})
}

const closeTimeout = 10 * time.Second

func getSelf(cli *client.Client) (domain.Identity, error) {
	me, err := cli.GetMe()
	if err != nil {
		return domain.Identity{}, classify("get me", domain.KindRemoteCall, err)
	}
	id := domain.Identity{
		ID:        me.Id,
		FirstName: me.FirstName,
		LastName:  me.LastName,
		Phone:     me.PhoneNumber,
	}
	if me.Usernames != nil && len(me.Usernames.ActiveUsernames) > 0 {
		id.Username = me.Usernames.ActiveUsernames[0]
	}
	return id, nil
}

// closeAndWait просит TDLib закрыться и ждёт AuthorizationStateClosed,
// чтобы база на диске была целой.
func closeAndWait(ctx context.Context, cli *client.Client, log *slog.Logger) {
	listener := cli.GetListener()
	defer listener.Close()

	if _, err := cli.Close(); err != nil {
		log.Warn("TDLib close", "error", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			log.Warn("TDLib close timed out", "error", ctx.Err())
			return
		case upd, ok := <-listener.Updates:
			if !ok {
				return
			}
			if u, isAuth := upd.(*client.UpdateAuthorizationState); isAuth {
				if _, closed := u.AuthorizationState.(*client.AuthorizationStateClosed); closed {
					return
				}
			}
		}
	}
}

func describe(id domain.Identity) string {
	if id.Username != "" {
		return fmt.Sprintf("%d (@%s)", id.ID, id.Username)
	}
	return fmt.Sprintf("%d", id.ID)
}
