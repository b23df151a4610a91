package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/terreiro/giras/internal/auth"
	"github.com/terreiro/giras/internal/repo"
	"github.com/terreiro/giras/internal/util"
)

var (
	// ErrInvalidCredentials indica celular desconhecido, usuário inativo ou senha errada.
	ErrInvalidCredentials = errors.New("Celular não encontrado ou usuário inativo.")
	// ErrPasswordRequired indica conta de coordenação que exige senha.
	ErrPasswordRequired = errors.New("senha obrigatória para esta conta")
	// ErrSessionInvalid é o mesmo sentinel de auth, usado pelo middleware.
	ErrSessionInvalid = auth.ErrSessionInvalid
)

type authRepository interface {
	GetUsuarioByCelular(ctx context.Context, celular string) (repo.Usuario, error)
	GetUsuarioByID(ctx context.Context, id int64) (repo.Usuario, error)
	GetMediumByUsuario(ctx context.Context, usuarioID int64) (repo.Medium, error)
	ListPasskeys(ctx context.Context, usuarioID int64) ([]repo.Passkey, error)
	GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (repo.Passkey, error)
	InsertPasskey(ctx context.Context, pk repo.Passkey) error
	UpdatePasskeyCounter(ctx context.Context, id int64, signCount uint32, cloned bool) error
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AuthService concentra login por celular, sessões e biometria.
type AuthService struct {
	repo  authRepository
	redis redisCommander
	jwt   *auth.JWTManager
}

// NewAuthService cria novo serviço.
func NewAuthService(r authRepository, redisClient redisCommander, jwtMgr *auth.JWTManager) *AuthService {
	return &AuthService{repo: r, redis: redisClient, jwt: jwtMgr}
}

// LoginResult representa a sessão emitida.
type LoginResult struct {
	Token   string
	Expires time.Time
	Profile *Profile
}

// Profile é o retorno de /me e do login.
type Profile struct {
	ID           int64          `json:"id"`
	Celular      string         `json:"celular"`
	Nome         string         `json:"nome"`
	Email        *string        `json:"email,omitempty"`
	Privilegiado bool           `json:"privilegiado"`
	Roles        []string       `json:"roles"`
	Medium       *MediumProfile `json:"medium"`
}

type MediumProfile struct {
	ID      int64   `json:"id"`
	Nome    string  `json:"nome"`
	FotoURL *string `json:"foto_url,omitempty"`
}

// LoginCelular autentica pelo número de celular; contas com senha precisam informá-la.
func (s *AuthService) LoginCelular(ctx context.Context, celular, senha string) (*LoginResult, error) {
	celular = util.NormalizeCelular(celular)
	if err := util.ValidateCelular(celular); err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetUsuarioByCelular(ctx, celular)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn().Msg("login: celular não encontrado")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.Ativo {
		log.Warn().Int64("usuario_id", user.ID).Msg("login: usuário inativo")
		return nil, ErrInvalidCredentials
	}

	if user.SenhaHash != nil && *user.SenhaHash != "" {
		if senha == "" {
			return nil, ErrPasswordRequired
		}
		ok, err := auth.Verify(senha, *user.SenhaHash)
		if err != nil {
			log.Warn().Err(err).Msg("login: verify password failed")
			return nil, ErrInvalidCredentials
		}
		if !ok {
			log.Warn().Int64("usuario_id", user.ID).Msg("login: senha inválida")
			return nil, ErrInvalidCredentials
		}
	}

	return s.LoginWithUser(ctx, user)
}

// LoginWithUser emite sessão para usuário já autenticado (ex.: biometria).
func (s *AuthService) LoginWithUser(ctx context.Context, user repo.Usuario) (*LoginResult, error) {
	if !user.Ativo {
		return nil, ErrInvalidCredentials
	}

	token, jti, expires, err := s.jwt.GenerateSessionToken(strconv.FormatInt(user.ID, 10), auth.RolesFor(user.Privilegiado()))
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, auth.SessionRedisKey(jti), strconv.FormatInt(user.ID, 10), time.Until(expires)).Err(); err != nil {
		return nil, err
	}

	profile, err := s.profile(ctx, user)
	if err != nil {
		return nil, err
	}

	log.Info().Int64("usuario_id", user.ID).Bool("privilegiado", user.Privilegiado()).Msg("sessão iniciada")
	return &LoginResult{Token: token, Expires: expires, Profile: profile}, nil
}

// ResolveCaller valida o token, confere a sessão no Redis e carrega identidade e médium.
func (s *AuthService) ResolveCaller(ctx context.Context, token string) (auth.Caller, error) {
	claims, err := s.jwt.ParseAndValidate(token)
	if err != nil {
		return auth.Caller{}, ErrSessionInvalid
	}

	stored, err := s.redis.Get(ctx, auth.SessionRedisKey(claims.ID)).Result()
	if errors.Is(err, redis.Nil) {
		return auth.Caller{}, ErrSessionInvalid
	}
	if err != nil {
		return auth.Caller{}, err
	}
	if stored != claims.Subject {
		return auth.Caller{}, ErrSessionInvalid
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return auth.Caller{}, ErrSessionInvalid
	}
	user, err := s.repo.GetUsuarioByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return auth.Caller{}, ErrSessionInvalid
		}
		return auth.Caller{}, err
	}
	if !user.Ativo {
		return auth.Caller{}, ErrSessionInvalid
	}

	caller := auth.Caller{
		UsuarioID:    user.ID,
		Celular:      user.Celular,
		Nome:         user.Nome,
		Privilegiado: user.Privilegiado(),
	}
	medium, err := s.repo.GetMediumByUsuario(ctx, user.ID)
	switch {
	case err == nil:
		mid := medium.ID
		caller.MediumID = &mid
		caller.MediumNome = medium.Nome
		caller.MediumHabilitado = medium.Habilitado
	case !errors.Is(err, repo.ErrNotFound):
		return auth.Caller{}, err
	}
	return caller, nil
}

// Logout encerra a sessão do token; tokens inválidos são ignorados.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.jwt.ParseAndValidate(token)
	if err != nil {
		return nil
	}
	if err := s.redis.Del(ctx, auth.SessionRedisKey(claims.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// GetMe devolve o perfil do chamador.
func (s *AuthService) GetMe(ctx context.Context, usuarioID int64) (*Profile, error) {
	user, err := s.repo.GetUsuarioByID(ctx, usuarioID)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, user)
}

func (s *AuthService) profile(ctx context.Context, user repo.Usuario) (*Profile, error) {
	p := &Profile{
		ID:           user.ID,
		Celular:      user.Celular,
		Nome:         user.Nome,
		Email:        user.Email,
		Privilegiado: user.Privilegiado(),
		Roles:        auth.RolesFor(user.Privilegiado()),
	}
	medium, err := s.repo.GetMediumByUsuario(ctx, user.ID)
	switch {
	case err == nil:
		p.Medium = &MediumProfile{ID: medium.ID, Nome: medium.Nome, FotoURL: medium.FotoURL}
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}
	return p, nil
}

func (s *AuthService) GetUsuarioByID(ctx context.Context, id int64) (repo.Usuario, error) {
	return s.repo.GetUsuarioByID(ctx, id)
}

func (s *AuthService) GetUsuarioByCelular(ctx context.Context, celular string) (repo.Usuario, error) {
	return s.repo.GetUsuarioByCelular(ctx, util.NormalizeCelular(celular))
}

func (s *AuthService) ListPasskeys(ctx context.Context, usuarioID int64) ([]repo.Passkey, error) {
	return s.repo.ListPasskeys(ctx, usuarioID)
}

func (s *AuthService) GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (repo.Passkey, error) {
	return s.repo.GetPasskeyByCredentialID(ctx, credentialID)
}

func (s *AuthService) CreatePasskey(ctx context.Context, pk repo.Passkey) error {
	return s.repo.InsertPasskey(ctx, pk)
}

func (s *AuthService) UpdatePasskeyCounter(ctx context.Context, id int64, signCount uint32, cloned bool) error {
	return s.repo.UpdatePasskeyCounter(ctx, id, signCount, cloned)
}
