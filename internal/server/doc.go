// Package server は、静的ファイル配信用のTCPサーバーを管理します。
//
// このパッケージは、リスニングソケットの確保、接続の受け付け、
// リクエスト行の解析、レスポンスの組み立てを担当します。
//
// 責務:
//   - リスニングソケットの確保と受け付けループの実行
//   - 1接続ごとに1ゴルーチンでのリクエスト処理
//   - GETリクエスト行の解析とファイル解決の呼び出し
//   - 200/404 レスポンスの書き込み
//   - 管理用エンドポイント（ヘルスチェック・状態確認）の提供
//
// 仕様:
//   - net/http は使わず、net.Listener 上で最小限のHTTP/1.1を扱う
//   - 1接続につき1リクエストのみ処理し、レスポンス後に切断する
//   - GET 以外やトークン不足のリクエスト行には何も返さず切断する
//   - 読み込み・書き込みにはそれぞれ期限を設定できる
//   - 同時接続数の上限を設定した場合は Accept を遅らせて制限する
//   - グレースフルシャットダウンに対応
//   - 管理用エンドポイントは gin を使用し、別ポートで待ち受ける
package server
