package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"quizroom-service/internal/domain"
)

// RouterConfig collects the handlers mounted by NewRouter.
type RouterConfig struct {
	Auth  *Authenticator
	Rooms *RoomHandler
	Quiz  *QuizHandler
	WS    *WSHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Get("/ws", cfg.WS.ServeWS)

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", cfg.Rooms.Create)
			r.Get("/", cfg.Rooms.Mine)
			r.Get("/admin", cfg.Rooms.All)
			r.Post("/join", cfg.Rooms.Join)
			r.Get("/code/{code}", cfg.Rooms.ByCode)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Rooms.ByID)
				r.Get("/participants", cfg.Rooms.Participants)
				r.Delete("/participants/{userID}", cfg.Rooms.RemoveParticipant)
				r.Post("/ready", cfg.Rooms.SetReady(true))
				r.Post("/not-ready", cfg.Rooms.SetReady(false))
				r.Post("/start", cfg.Rooms.Start)
				r.Post("/end", cfg.Rooms.End)
				r.Get("/submission-status", cfg.Rooms.SubmissionStatus)
				r.Get("/leaderboard", cfg.Rooms.Leaderboard)
			})
		})

		// {id} is the room id for start and the attempt id everywhere else.
		r.Route("/room-quiz/{id}", func(r chi.Router) {
			r.Post("/start", cfg.Quiz.Start)
			r.Get("/next-question", cfg.Quiz.NextQuestion)
			r.Post("/save-response", cfg.Quiz.SaveResponse)
			r.Post("/submit", cfg.Quiz.Complete(domain.CompleteSubmit))
			r.Post("/exit", cfg.Quiz.Complete(domain.CompleteExit))
			r.Post("/auto-submit", cfg.Quiz.Complete(domain.CompleteAutoSubmit))
			r.Get("/result", cfg.Quiz.Result)
		})
	})
	return r
}
