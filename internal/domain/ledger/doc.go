// Package ledger содержит доменную модель прогресса ученика Teens Space.
//
// Весь прогресс одного ученика хранится в одном версионированном объекте
// State: опыт и уровень, монеты и гемы, серия дней со щитом, инвентарь,
// достижения, ежедневные задания, оценки "колеса баланса" и пройденные уроки.
//
// # Архитектурные принципы
//
//  1. Нулевые внешние зависимости - только стандартная библиотека и pkg/timeutil
//  2. Операции - чистые методы State: дата передаётся аргументом, часы не читаются
//  3. Ошибки типизированы (shared.ErrInsufficientFunds, shared.ErrCorruptState и т.д.),
//     молчаливого отката к значениям по умолчанию нет
//  4. Атомарность обеспечивает Repository.Update: функция изменяет копию,
//     и если она вернула ошибку, ничего не сохраняется
//
// # Пример
//
//	st, err := repo.Update(ctx, id, func(s *ledger.State) error {
//	    s.BeginDay(today, catalog)
//	    _, err := s.CompleteLesson(lesson, today, catalog)
//	    return err
//	})
//	events := st.PullEvents()
//
// # Серия и щит
//
// Серия растёт на 1 за каждый новый календарный день подряд. Пропуск
// сбрасывает её к 1, если только не активирован щит: он прощает пропуск
// не длиннее Policy.ProtectionWindowDays и сгорает. Щит, активированный в
// день обнаружения пропуска, задним числом не действует и остаётся активным.
package ledger
